package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/testutil"
)

// Diamond: A -> B -> D costs 1000, A -> C -> D costs 1100.
func diamondProjection(t *testing.T) *graph.Projection {
	t.Helper()

	files := map[string][]string{
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"rab,RAB,3",
			"rbd,RBD,3",
			"rac,RAC,3",
			"rcd,RCD,3",
		},
		"calendar.txt": {
			"service_id,monday,start_date,end_date",
			"mondays,1,20250101,20251231",
		},
		"trips.txt": {
			"route_id,service_id,trip_id",
			"rab,mondays,tab",
			"rbd,mondays,tbd",
			"rac,mondays,tac",
			"rcd,mondays,tcd",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Alpha,45,10",
			"B,Bravo,45.02,10",
			"C,Charlie,45,10.02",
			"D,Delta,45.02,10.02",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"tab,08:00:00,08:00:00,A,1",
			"tab,08:10:00,08:10:00,B,2",
			"tbd,08:15:00,08:15:00,B,1",
			"tbd,08:21:40,08:21:40,D,2",
			"tac,08:00:00,08:00:00,A,1",
			"tac,08:05:00,08:05:00,C,2",
			"tcd,08:10:00,08:10:00,C,1",
			"tcd,08:23:20,08:23:20,D,2",
		},
	}

	_, reader := testutil.BuildFeed(t, "memory", files)
	builder := graph.NewBuilder(500, 4.5)
	g, err := builder.Build(reader)
	require.NoError(t, err)

	return g.Project()
}

func TestPathSearchOrdering(t *testing.T) {
	search := newPathSearch(diamondProjection(t), "A", "D")

	path, cost, ok := search.Next()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "D"}, path)
	assert.Equal(t, 1000, cost)

	path, cost, ok = search.Next()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C", "D"}, path)
	assert.Equal(t, 1100, cost)

	_, _, ok = search.Next()
	assert.False(t, ok)
}

func TestPathSearchSimplePaths(t *testing.T) {
	// Every produced path must be loopless and distinct.
	search := newPathSearch(diamondProjection(t), "A", "D")

	seen := map[string]bool{}
	for {
		path, _, ok := search.Next()
		if !ok {
			break
		}

		visited := map[string]bool{}
		for _, stop := range path {
			assert.False(t, visited[stop], "loop through %s", stop)
			visited[stop] = true
		}

		key := pathKey(path)
		assert.False(t, seen[key], "duplicate path %v", path)
		seen[key] = true
	}
}

func TestPathSearchNoRoute(t *testing.T) {
	search := newPathSearch(diamondProjection(t), "D", "A")

	_, _, ok := search.Next()
	assert.False(t, ok)
}

func TestPathSearchDeterministic(t *testing.T) {
	collect := func() [][]string {
		search := newPathSearch(diamondProjection(t), "A", "D")
		var paths [][]string
		for {
			path, _, ok := search.Next()
			if !ok {
				return paths
			}
			paths = append(paths, path)
		}
	}

	require.Equal(t, collect(), collect())
}
