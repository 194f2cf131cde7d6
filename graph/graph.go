package graph

import (
	"github.com/dcmshi/transit-planner/model"
)

// A directed multigraph of stops. Edges are either scheduled route
// connections (possibly several per stop pair, one per route) or
// symmetric walking connections. Graphs are immutable once built;
// refreshes replace the whole graph via the Builder.
type Graph struct {
	stops map[string]*model.Stop
	adj   map[string][]*Edge
}

// One directed edge of the multigraph. RouteID is empty for walk
// edges.
type Edge struct {
	From           string
	To             string
	RouteID        string
	Walk           bool
	Seconds        int
	DistanceMetres float64
}

func newGraph() *Graph {
	return &Graph{
		stops: map[string]*model.Stop{},
		adj:   map[string][]*Edge{},
	}
}

func (g *Graph) addStop(stop *model.Stop) {
	g.stops[stop.ID] = stop
}

func (g *Graph) addEdge(e *Edge) {
	g.adj[e.From] = append(g.adj[e.From], e)
}

// Stop returns the stop with the given ID, or nil.
func (g *Graph) Stop(id string) *model.Stop {
	return g.stops[id]
}

func (g *Graph) NumStops() int {
	return len(g.stops)
}

// Out returns all edges leaving the given stop.
func (g *Graph) Out(stopID string) []*Edge {
	return g.adj[stopID]
}

// TripEdges returns the scheduled (non-walk) edges from one stop to
// another, one per route serving the pair.
func (g *Graph) TripEdges(fromID, toID string) []*Edge {
	var edges []*Edge
	for _, e := range g.adj[fromID] {
		if e.To == toID && !e.Walk {
			edges = append(edges, e)
		}
	}
	return edges
}

// WalkEdge returns the walk edge between two stops, or nil when the
// stops aren't within walking distance.
func (g *Graph) WalkEdge(fromID, toID string) *Edge {
	for _, e := range g.adj[fromID] {
		if e.To == toID && e.Walk {
			return e
		}
	}
	return nil
}

// Project collapses the multigraph to a simple weighted digraph,
// keeping the minimum weight among parallel edges of each ordered
// stop pair.
func (g *Graph) Project() *Projection {
	p := &Projection{adj: make(map[string]map[string]int, len(g.adj))}
	for from, edges := range g.adj {
		row := map[string]int{}
		for _, e := range edges {
			if w, ok := row[e.To]; !ok || e.Seconds < w {
				row[e.To] = e.Seconds
			}
		}
		p.adj[from] = row
	}
	return p
}

// A simple weighted digraph: at most one edge per ordered stop pair.
// This is the structure path search runs on.
type Projection struct {
	adj map[string]map[string]int
}

// Weight returns the edge weight in seconds and whether the edge
// exists.
func (p *Projection) Weight(fromID, toID string) (int, bool) {
	w, ok := p.adj[fromID][toID]
	return w, ok
}

// Neighbors returns the adjacency row for a stop. Callers must not
// mutate it.
func (p *Projection) Neighbors(fromID string) map[string]int {
	return p.adj[fromID]
}
