package graph

import (
	"math"
	"sort"

	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

// Metres of latitude per degree. Longitude shrinks with cos(lat).
const metresPerDegree = 111320.0

// walkPairs finds every stop pair within radius metres of each other.
// Stops are sorted by latitude so each stop only gets compared
// against a bounded band of neighbors, with a longitude pre-filter
// before the exact distance check. O(n·k) instead of the naive O(n²),
// which matters once feeds grow into thousands of stops.
func walkPairs(stops []*model.Stop, radiusMetres float64) [][2]*model.Stop {
	byLat := make([]*model.Stop, len(stops))
	copy(byLat, stops)
	sort.Slice(byLat, func(i, j int) bool {
		return byLat[i].Lat < byLat[j].Lat
	})

	deltaLat := radiusMetres / metresPerDegree

	var pairs [][2]*model.Stop
	for i, s := range byLat {
		// Only look ahead in latitude order; each unordered
		// pair is found exactly once.
		maxLat := s.Lat + deltaLat
		deltaLon := radiusMetres / (metresPerDegree * math.Cos(s.Lat*math.Pi/180))

		for j := i + 1; j < len(byLat); j++ {
			o := byLat[j]
			if o.Lat > maxLat {
				break
			}
			if math.Abs(o.Lon-s.Lon) > deltaLon {
				continue
			}
			if storage.HaversineMetres(s.Lat, s.Lon, o.Lat, o.Lon) <= radiusMetres {
				pairs = append(pairs, [2]*model.Stop{s, o})
			}
		}
	}

	return pairs
}

// addWalkEdges links all stops within radius of each other, both
// directions, at the given walking speed.
func addWalkEdges(g *Graph, stops []*model.Stop, radiusMetres, speedKPH float64) {
	metresPerSecond := speedKPH / 3.6

	for _, pair := range walkPairs(stops, radiusMetres) {
		a, b := pair[0], pair[1]
		dist := storage.HaversineMetres(a.Lat, a.Lon, b.Lat, b.Lon)
		secs := int(math.Round(dist / metresPerSecond))

		g.addEdge(&Edge{
			From:           a.ID,
			To:             b.ID,
			Walk:           true,
			Seconds:        secs,
			DistanceMetres: dist,
		})
		g.addEdge(&Edge{
			From:           b.ID,
			To:             a.ID,
			Walk:           true,
			Seconds:        secs,
			DistanceMetres: dist,
		})
	}
}
