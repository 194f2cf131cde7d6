package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/storage"
)

func TestParseTrips(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		routes   map[string]bool
		services map[string]bool
		tripIDs  map[string]bool
		err      bool
	}{
		{
			"minimal",
			`
trip_id,route_id,service_id
t,r,s`,
			map[string]bool{"r": true},
			map[string]bool{"s": true},
			map[string]bool{"t": true},
			false,
		},

		{
			"multiple trips with optional fields",
			`
trip_id,route_id,service_id,trip_headsign,direction_id
t1,r1,s1,Downtown,0
t2,r2,s1,Uptown,1`,
			map[string]bool{"r1": true, "r2": true},
			map[string]bool{"s1": true},
			map[string]bool{"t1": true, "t2": true},
			false,
		},

		{
			"blank trip_id",
			`
route_id,service_id
r,s`,
			map[string]bool{"r": true},
			map[string]bool{"s": true},
			nil,
			true,
		},

		{
			"blank route_id",
			`
trip_id,service_id
t,s`,
			map[string]bool{"r": true},
			map[string]bool{"s": true},
			nil,
			true,
		},

		{
			"blank service_id",
			`
trip_id,route_id
t,r`,
			map[string]bool{"r": true},
			map[string]bool{"s": true},
			nil,
			true,
		},

		{
			"unknown route_id",
			`
trip_id,route_id,service_id
t,r1,s`,
			map[string]bool{"r2": true},
			map[string]bool{"s": true},
			nil,
			true,
		},

		{
			"unknown service_id",
			`
trip_id,route_id,service_id
t,r,s1`,
			map[string]bool{"r": true},
			map[string]bool{"s2": true},
			nil,
			true,
		},

		{
			"repeated trip_id",
			`
trip_id,route_id,service_id
t,r1,s1
t,r2,s2`,
			map[string]bool{"r1": true, "r2": true},
			map[string]bool{"s1": true, "s2": true},
			nil,
			true,
		},

		{
			"invalid direction_id",
			`
trip_id,route_id,service_id,direction_id
t,r,s,2`,
			map[string]bool{"r": true},
			map[string]bool{"s": true},
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {

			s, err := storage.NewSQLiteStorage()
			require.NoError(t, err)
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			require.NoError(t, writer.BeginTrips())
			tripIDs, err := ParseTrips(writer, bytes.NewBufferString(tc.content), tc.routes, tc.services)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			require.NoError(t, writer.EndTrips())

			assert.Equal(t, tc.tripIDs, tripIDs)
		})
	}
}
