package graph

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/dcmshi/transit-planner/storage"
)

// Returned by Current() before any successful Build().
var ErrNotBuilt = fmt.Errorf("stops graph has not been built")

// Builder materializes stop multigraphs from a schedule feed and
// publishes them atomically. In-flight queries holding the previous
// graph keep working against it; they never observe a half-built one.
type Builder struct {
	WalkRadiusMetres float64
	WalkSpeedKPH     float64

	current atomic.Pointer[Graph]
}

func NewBuilder(walkRadiusMetres, walkSpeedKPH float64) *Builder {
	return &Builder{
		WalkRadiusMetres: walkRadiusMetres,
		WalkSpeedKPH:     walkSpeedKPH,
	}
}

// Build constructs a new graph from the given feed and swaps it in as
// the current one. A feed without stops is a configuration error and
// leaves the previous graph (if any) in place.
func (b *Builder) Build(reader storage.FeedReader) (*Graph, error) {
	g, err := build(reader, b.WalkRadiusMetres, b.WalkSpeedKPH)
	if err != nil {
		return nil, err
	}

	b.current.Store(g)
	return g, nil
}

// Current returns the most recently built graph, or ErrNotBuilt.
func (b *Builder) Current() (*Graph, error) {
	g := b.current.Load()
	if g == nil {
		return nil, ErrNotBuilt
	}
	return g, nil
}

func build(reader storage.FeedReader, walkRadiusMetres, walkSpeedKPH float64) (*Graph, error) {
	stops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	if len(stops) == 0 {
		return nil, fmt.Errorf("feed has no stops")
	}

	g := newGraph()
	for _, stop := range stops {
		g.addStop(stop)
	}

	// One bulk query for all scheduled connections, rather than
	// walking trips edge by edge.
	edges, err := reader.RouteEdges()
	if err != nil {
		return nil, fmt.Errorf("reading route edges: %w", err)
	}
	for _, e := range edges {
		if g.Stop(e.FromStopID) == nil || g.Stop(e.ToStopID) == nil {
			continue
		}
		g.addEdge(&Edge{
			From:    e.FromStopID,
			To:      e.ToStopID,
			RouteID: e.RouteID,
			Seconds: e.TravelSeconds,
		})
	}

	addWalkEdges(g, stops, walkRadiusMetres, walkSpeedKPH)

	log.Printf("built stops graph: %d stops, %d route edges", len(stops), len(edges))

	return g, nil
}
