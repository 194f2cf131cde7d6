package planner

import (
	"container/heap"
	"sort"

	"github.com/dcmshi/transit-planner/graph"
)

// Yen's k-shortest simple paths, as a lazy iterator over the
// projected digraph. Paths come out in non-decreasing total-weight
// order. The iterator is finite: it ends when the graph has no more
// simple paths between the endpoints.
type pathSearch struct {
	proj   *graph.Projection
	origin string
	dest   string

	accepted  [][]string // A list: shortest paths found so far
	costs     []int
	potential *candidateHeap // B list: spur paths not yet accepted
	seen      map[string]bool
	done      bool
}

func newPathSearch(proj *graph.Projection, origin, dest string) *pathSearch {
	return &pathSearch{
		proj:      proj,
		origin:    origin,
		dest:      dest,
		potential: &candidateHeap{},
		seen:      map[string]bool{},
	}
}

// Next returns the next-shortest simple path and its total weight in
// seconds, or ok=false when no further path exists.
func (s *pathSearch) Next() ([]string, int, bool) {
	if s.done {
		return nil, 0, false
	}

	if len(s.accepted) == 0 {
		path, cost, ok := dijkstra(s.proj, s.origin, s.dest, nil, nil)
		if !ok {
			s.done = true
			return nil, 0, false
		}
		s.accept(path, cost)
		return path, cost, true
	}

	prev := s.accepted[len(s.accepted)-1]

	// Spur off every node of the previous path except the last.
	for i := 0; i < len(prev)-1; i++ {
		spurNode := prev[i]
		rootPath := prev[:i+1]
		rootCost := s.pathCost(rootPath)

		// Ban edges used by accepted paths sharing this root,
		// so the spur can't recreate them.
		bannedEdges := map[[2]string]bool{}
		for _, p := range s.accepted {
			if len(p) > i && samePath(p[:i+1], rootPath) {
				bannedEdges[[2]string{p[i], p[i+1]}] = true
			}
		}

		// Ban root nodes (except the spur node) to keep the
		// final path simple.
		bannedNodes := map[string]bool{}
		for _, n := range rootPath[:len(rootPath)-1] {
			bannedNodes[n] = true
		}

		spurPath, spurCost, ok := dijkstra(s.proj, spurNode, s.dest, bannedNodes, bannedEdges)
		if !ok {
			continue
		}

		total := append(append([]string{}, rootPath...), spurPath[1:]...)
		key := pathKey(total)
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		heap.Push(s.potential, candidate{path: total, cost: rootCost + spurCost})
	}

	if s.potential.Len() == 0 {
		s.done = true
		return nil, 0, false
	}

	best := heap.Pop(s.potential).(candidate)
	s.accept(best.path, best.cost)
	return best.path, best.cost, true
}

func (s *pathSearch) accept(path []string, cost int) {
	s.accepted = append(s.accepted, path)
	s.costs = append(s.costs, cost)
	s.seen[pathKey(path)] = true
}

func (s *pathSearch) pathCost(path []string) int {
	cost := 0
	for i := 0; i < len(path)-1; i++ {
		w, _ := s.proj.Weight(path[i], path[i+1])
		cost += w
	}
	return cost
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pathKey(path []string) string {
	key := ""
	for _, s := range path {
		key += s + "\x00"
	}
	return key
}

type candidate struct {
	path []string
	cost int
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Dijkstra over the projection, honoring banned nodes and edges.
// Returns the path (origin..dest), its cost, and whether one exists.
func dijkstra(
	p *graph.Projection,
	origin, dest string,
	bannedNodes map[string]bool,
	bannedEdges map[[2]string]bool,
) ([]string, int, bool) {

	dist := map[string]int{origin: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &distHeap{{node: origin, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(distEntry)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		if cur.node == dest {
			break
		}

		// Deterministic neighbor order keeps equal-cost path
		// selection stable across runs.
		neighbors := p.Neighbors(cur.node)
		keys := make([]string, 0, len(neighbors))
		for n := range neighbors {
			keys = append(keys, n)
		}
		sort.Strings(keys)

		for _, n := range keys {
			if bannedNodes[n] || bannedEdges[[2]string{cur.node, n}] {
				continue
			}
			alt := cur.dist + neighbors[n]
			if d, ok := dist[n]; !ok || alt < d {
				dist[n] = alt
				prev[n] = cur.node
				heap.Push(pq, distEntry{node: n, dist: alt})
			}
		}
	}

	if !visited[dest] {
		return nil, 0, false
	}

	path := []string{dest}
	for path[len(path)-1] != origin {
		path = append(path, prev[path[len(path)-1]])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, dist[dest], true
}

type distEntry struct {
	node string
	dist int
}

type distHeap []distEntry

func (h distHeap) Len() int            { return len(h) }
func (h distHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x interface{}) { *h = append(*h, x.(distEntry)) }
func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
