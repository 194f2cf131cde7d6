package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/config"
	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/live"
	"github.com/dcmshi/transit-planner/reliability"
	"github.com/dcmshi/transit-planner/storage"
	"github.com/dcmshi/transit-planner/testutil"
)

func testRoutingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		MaxRoutes:          3,
		MaxTransfers:       2,
		MinTransferMinutes: 5,
		MaxWalkMetres:      500,
		WalkSpeedKPH:       4.5,
	}
}

// testStack wires up a complete engine around an in-memory feed.
type testStack struct {
	engine   *Engine
	storage  storage.Storage
	reader   storage.FeedReader
	builder  *graph.Builder
	provider *live.Provider
}

func newTestStack(t *testing.T, files map[string][]string, cfg config.RoutingConfig) *testStack {
	t.Helper()

	s, reader := testutil.BuildFeed(t, "memory", files)

	builder := graph.NewBuilder(cfg.MaxWalkMetres, cfg.WalkSpeedKPH)
	_, err := builder.Build(reader)
	require.NoError(t, err)

	provider := &live.Provider{}
	engine := NewEngine(builder, reliability.NewHistory(s), provider, cfg)
	engine.SetFeed("test", reader, time.UTC)

	return &testStack{
		engine:   engine,
		storage:  s,
		reader:   reader,
		builder:  builder,
		provider: provider,
	}
}

// Three stops on a line, far enough apart that walking is not an
// option. t1 rides the full corridor on r1, t2 covers the second hop
// on r2, t3 is a slow direct on r3. Mondays only.
func fixtureCorridor() map[string][]string {
	return map[string][]string{
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"r1,R1,3",
			"r2,R2,3",
			"r3,R3,3",
		},
		"calendar.txt": {
			"service_id,monday,start_date,end_date",
			"mondays,1,20250101,20251231",
		},
		"trips.txt": {
			"route_id,service_id,trip_id",
			"r1,mondays,t1",
			"r2,mondays,t2",
			"r3,mondays,t3",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Alpha,45,10",
			"B,Bravo,45,10.02",
			"C,Charlie,45,10.04",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t1,08:00:00,08:00:00,A,1",
			"t1,08:10:00,08:11:00,B,2",
			"t1,08:25:00,08:25:00,C,3",
			"t2,08:20:00,08:20:00,B,1",
			"t2,08:30:00,08:30:00,C,2",
			"t3,08:05:00,08:05:00,A,1",
			"t3,08:40:00,08:40:00,C,2",
		},
	}
}

// Four stops, one route per hop, with late-running spare trips on the
// second and third hops. Exercises transfer counting and buffers.
func fixtureChain() map[string][]string {
	return map[string][]string{
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"rA,RA,3",
			"rB,RB,3",
			"rC,RC,3",
		},
		"calendar.txt": {
			"service_id,monday,start_date,end_date",
			"mondays,1,20250101,20251231",
		},
		"trips.txt": {
			"route_id,service_id,trip_id",
			"rA,mondays,tA",
			"rB,mondays,tB",
			"rB,mondays,tB2",
			"rC,mondays,tC",
			"rC,mondays,tC2",
			"rC,mondays,tC3",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Alpha,45,10",
			"B,Bravo,45,10.02",
			"C,Charlie,45,10.04",
			"D,Delta,45,10.06",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"tA,08:00:00,08:00:00,A,1",
			"tA,08:10:00,08:10:00,B,2",
			"tB,08:20:00,08:20:00,B,1",
			"tB,08:30:00,08:30:00,C,2",
			"tB2,09:00:00,09:00:00,B,1",
			"tB2,09:10:00,09:10:00,C,2",
			"tC,08:40:00,08:40:00,C,1",
			"tC,08:50:00,08:50:00,D,2",
			"tC2,09:20:00,09:20:00,C,1",
			"tC2,09:30:00,09:30:00,D,2",
			"tC3,09:30:00,09:30:00,C,1",
			"tC3,09:40:00,09:40:00,D,2",
		},
	}
}
