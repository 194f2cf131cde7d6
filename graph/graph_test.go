package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

// A: origin. B: ~300m east of A (walkable). C: ~5.5km north of A,
// served by two routes from A with differing travel times.
func testFeed(t *testing.T) storage.FeedReader {
	s := storage.NewMemoryStorage()
	w, err := s.GetWriter("test")
	require.NoError(t, err)

	require.NoError(t, w.WriteStop(&model.Stop{ID: "A", Name: "Stop A", Lat: 0, Lon: 0}))
	require.NoError(t, w.WriteStop(&model.Stop{ID: "B", Name: "Stop B", Lat: 0, Lon: 0.0027}))
	require.NoError(t, w.WriteStop(&model.Stop{ID: "C", Name: "Stop C", Lat: 0.05, Lon: 0}))

	require.NoError(t, w.WriteRoute(&model.Route{ID: "r1", ShortName: "1", Type: model.RouteTypeBus}))
	require.NoError(t, w.WriteRoute(&model.Route{ID: "r2", ShortName: "2", Type: model.RouteTypeBus}))

	require.NoError(t, w.WriteCalendar(&model.Calendar{
		ServiceID: "daily",
		StartDate: "20250101",
		EndDate:   "20251231",
		Weekday:   0b1111111,
	}))

	require.NoError(t, w.BeginTrips())
	require.NoError(t, w.WriteTrip(&model.Trip{ID: "t1", RouteID: "r1", ServiceID: "daily"}))
	require.NoError(t, w.WriteTrip(&model.Trip{ID: "t2", RouteID: "r2", ServiceID: "daily"}))
	require.NoError(t, w.EndTrips())

	require.NoError(t, w.BeginStopTimes())
	// r1: A -> C in 20 minutes
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "t1", StopID: "A", StopSequence: 1, Arrival: "080000", Departure: "080000"}))
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "t1", StopID: "C", StopSequence: 2, Arrival: "082000", Departure: "082000"}))
	// r2: A -> C in 10 minutes
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "t2", StopID: "A", StopSequence: 1, Arrival: "080500", Departure: "080500"}))
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "t2", StopID: "C", StopSequence: 2, Arrival: "081500", Departure: "081500"}))
	require.NoError(t, w.EndStopTimes())
	require.NoError(t, w.Close())

	reader, err := s.GetReader("test")
	require.NoError(t, err)
	return reader
}

func TestBuildTripEdges(t *testing.T) {
	b := NewBuilder(500, 4.5)
	g, err := b.Build(testFeed(t))
	require.NoError(t, err)

	assert.Equal(t, 3, g.NumStops())
	assert.NotNil(t, g.Stop("A"))
	assert.Nil(t, g.Stop("X"))

	// Two parallel scheduled edges A->C, one per route
	edges := g.TripEdges("A", "C")
	require.Len(t, edges, 2)
	byRoute := map[string]int{}
	for _, e := range edges {
		byRoute[e.RouteID] = e.Seconds
	}
	assert.Equal(t, map[string]int{"r1": 1200, "r2": 600}, byRoute)

	// No scheduled edge in the reverse direction
	assert.Empty(t, g.TripEdges("C", "A"))
}

func TestBuildWalkEdges(t *testing.T) {
	b := NewBuilder(500, 4.5)
	g, err := b.Build(testFeed(t))
	require.NoError(t, err)

	// A and B are ~300m apart: walkable, both directions
	ab := g.WalkEdge("A", "B")
	require.NotNil(t, ab)
	assert.InDelta(t, 300, ab.DistanceMetres, 5)
	// 4.5 km/h is 1.25 m/s
	assert.InDelta(t, 240, ab.Seconds, 5)

	ba := g.WalkEdge("B", "A")
	require.NotNil(t, ba)
	assert.Equal(t, ab.Seconds, ba.Seconds)

	// A and C are kilometres apart
	assert.Nil(t, g.WalkEdge("A", "C"))
	assert.Nil(t, g.WalkEdge("C", "A"))
}

func TestProjectionKeepsMinWeight(t *testing.T) {
	b := NewBuilder(500, 4.5)
	g, err := b.Build(testFeed(t))
	require.NoError(t, err)

	p := g.Project()

	// Minimum among the two parallel A->C edges
	w, ok := p.Weight("A", "C")
	require.True(t, ok)
	assert.Equal(t, 600, w)

	// Walk edges survive projection
	w, ok = p.Weight("A", "B")
	require.True(t, ok)
	assert.InDelta(t, 240, w, 5)

	_, ok = p.Weight("C", "A")
	assert.False(t, ok)
}

func TestBuilderCurrent(t *testing.T) {
	b := NewBuilder(500, 4.5)

	_, err := b.Current()
	assert.ErrorIs(t, err, ErrNotBuilt)

	g, err := b.Build(testFeed(t))
	require.NoError(t, err)

	cur, err := b.Current()
	require.NoError(t, err)
	assert.Same(t, g, cur)

	// A new build replaces the published graph
	g2, err := b.Build(testFeed(t))
	require.NoError(t, err)
	cur, err = b.Current()
	require.NoError(t, err)
	assert.Same(t, g2, cur)
}

func TestBuildEmptyFeed(t *testing.T) {
	s := storage.NewMemoryStorage()
	w, err := s.GetWriter("empty")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	reader, err := s.GetReader("empty")
	require.NoError(t, err)

	b := NewBuilder(500, 4.5)
	_, err = b.Build(reader)
	assert.Error(t, err)

	// A failed build must not publish anything
	_, err = b.Current()
	assert.ErrorIs(t, err, ErrNotBuilt)
}
