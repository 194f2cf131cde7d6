package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/storage"
)

func TestParseCalendar(t *testing.T) {
	for _, tc := range []struct {
		name       string
		content    string
		serviceIDs map[string]bool
		minDate    string
		maxDate    string
		err        bool
	}{
		{
			"minimal",
			`
service_id,start_date,end_date
s,20170101,20170131`,
			map[string]bool{"s": true},
			"20170101",
			"20170131",
			false,
		},

		{
			"maximal",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
s,1,1,1,1,1,1,1,20170101,20170131`,
			map[string]bool{"s": true},
			"20170101",
			"20170131",
			false,
		},

		{
			"multiple services",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
s1,1,1,1,1,1,1,1,20170101,20170131
s2,1,1,1,1,1,0,0,20171001,20180201
s3,1,1,0,1,1,0,1,20161225,20170202`,
			map[string]bool{"s1": true, "s2": true, "s3": true},
			"20161225",
			"20180201",
			false,
		},

		{
			"invalid weekday",
			`
service_id,monday,tuesday,start_date,end_date
s,1,3,20170101,20170131`,
			nil, "", "", true,
		},

		{
			"malformed weekday",
			`
service_id,thursday,start_date,end_date
s,X,20170101,20170131`,
			nil, "", "", true,
		},

		{
			"invalid date",
			`
service_id,monday,tuesday,start_date,end_date
s,1,1,20170101,20170132`,
			nil, "", "", true,
		},

		{
			"repeated service_id",
			`
service_id,monday,tuesday,start_date,end_date
s,1,1,20170101,20170131
s,1,1,20170101,20170131`,
			nil, "", "", true,
		},

		{
			"missing service_id",
			`
monday,tuesday,start_date,end_date
1,1,20170101,20170131`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := storage.NewSQLiteStorage()
			require.NoError(t, err)
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			serviceIDs, minDate, maxDate, err := ParseCalendar(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.serviceIDs, serviceIDs)
			assert.Equal(t, tc.minDate, minDate)
			assert.Equal(t, tc.maxDate, maxDate)
		})
	}
}

// Calendar records written through the parser must feed into service
// activation by weekday and date range.
func TestParseCalendarActiveServices(t *testing.T) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	// s1 runs every day, s2 on weekdays only, s3 only on
	// Wednesdays of a narrower window.
	_, _, _, err = ParseCalendar(writer, bytes.NewBufferString(`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
s1,1,1,1,1,1,1,1,20170101,20170331
s2,1,1,1,1,1,0,0,20170101,20170331
s3,0,0,1,0,0,0,0,20170201,20170228`))
	require.NoError(t, err)

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	// Wednesday Feb 1st 2017: all three active
	services, err := reader.ActiveServices("20170201")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, services)

	// Saturday Feb 4th 2017: only s1
	services, err = reader.ActiveServices("20170204")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1"}, services)

	// Wednesday March 1st 2017: s3's window has ended
	services, err = reader.ActiveServices("20170301")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, services)

	// Outside every window
	services, err = reader.ActiveServices("20170401")
	require.NoError(t, err)
	assert.Empty(t, services)
}
