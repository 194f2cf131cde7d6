package planner

import (
	"fmt"
	"sort"

	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/storage"
)

// resolver converts abstract stop paths into concrete timed legs for
// one (date, not-before) query. It holds no state beyond the query
// cache: resolving the same path with the same cursor twice yields
// identical legs.
type resolver struct {
	g        *graph.Graph
	reader   storage.FeedReader
	date     string
	services []string
	cache    *queryCache

	minTransferSeconds int
}

// resolve produces the legs for path, departing no earlier than
// notBeforeSec (seconds past midnight). Fails with errUnresolvable
// when no scheduled trip covers some hop before day's end.
func (r *resolver) resolve(path []string, notBeforeSec int) ([]model.Leg, error) {
	var legs []model.Leg
	cursor := notBeforeSec

	i := 0
	for i < len(path)-1 {
		from, to := path[i], path[i+1]

		tripEdges := r.g.TripEdges(from, to)
		if len(tripEdges) == 0 {
			walk := r.g.WalkEdge(from, to)
			if walk == nil {
				return nil, fmt.Errorf("%w: no edge %s -> %s", errUnresolvable, from, to)
			}
			legs = append(legs, r.walkLeg(walk, cursor))
			cursor += walk.Seconds
			i++
			continue
		}

		// Board a new trip. Departing a previous trip costs
		// the transfer buffer; walking is its own buffer.
		notBefore := cursor
		if n := len(legs); n > 0 && legs[n-1].Kind == model.LegTrip {
			notBefore += r.minTransferSeconds
		}

		routeID := pickRoute(r.g, tripEdges, path[i:])

		tripID, err := r.nextTrip(routeID, from, to, notBefore)
		if err != nil {
			return nil, err
		}
		if tripID == "" {
			return nil, fmt.Errorf("%w: no %s trip %s -> %s after %s",
				errUnresolvable, routeID, from, to, model.SecondsToHHMMSS(notBefore))
		}

		// Ride this trip instance across as many consecutive
		// same-route hops as its stop sequence allows.
		n, tripLegs, err := r.threadTrip(tripID, routeID, path[i:])
		if err != nil {
			return nil, err
		}
		legs = append(legs, tripLegs...)
		cursor = tripLegs[len(tripLegs)-1].ArrivalSec
		i += n
	}

	return legs, nil
}

// pickRoute selects the route for the next hop among parallel edges.
// Minimum weight wins; among routes tied at minimum weight, the one
// covering the longest contiguous run of the remaining path is
// preferred. Picking a short-haul route at a shared corridor can
// strand the path before its transfer point.
func pickRoute(g *graph.Graph, edges []*graph.Edge, rest []string) string {
	minW := edges[0].Seconds
	for _, e := range edges[1:] {
		if e.Seconds < minW {
			minW = e.Seconds
		}
	}

	var tied []string
	for _, e := range edges {
		if e.Seconds == minW {
			tied = append(tied, e.RouteID)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	sort.Strings(tied)

	best := tied[0]
	bestRun := 0
	for _, routeID := range tied {
		run := 0
		for j := 0; j < len(rest)-1; j++ {
			if !hasRouteEdge(g, rest[j], rest[j+1], routeID) {
				break
			}
			run++
		}
		if run > bestRun {
			best, bestRun = routeID, run
		}
	}
	return best
}

func hasRouteEdge(g *graph.Graph, from, to, routeID string) bool {
	for _, e := range g.TripEdges(from, to) {
		if e.RouteID == routeID {
			return true
		}
	}
	return false
}

// threadTrip emits one leg per hop covered by the given trip,
// starting at rest[0]. It extends across hops while the multigraph
// keeps offering the same route and the trip's own stop sequence
// keeps covering the next stop. Returns the number of hops consumed.
func (r *resolver) threadTrip(tripID, routeID string, rest []string) (int, []model.Leg, error) {
	stopTimes, err := r.tripStopTimes(tripID)
	if err != nil {
		return 0, nil, err
	}

	pos := map[string]int{}
	for idx, st := range stopTimes {
		if _, ok := pos[st.StopID]; !ok {
			pos[st.StopID] = idx
		}
	}

	var legs []model.Leg
	n := 0
	for n < len(rest)-1 {
		from, to := rest[n], rest[n+1]

		if n > 0 {
			// Only the first hop is guaranteed to be on
			// this trip; later hops must still be served
			// by the same route and covered by this trip.
			if !hasRouteEdge(r.g, from, to, routeID) {
				break
			}
		}
		fi, ok := pos[from]
		if !ok {
			break
		}
		ti, ok := pos[to]
		if !ok || ti <= fi {
			break
		}

		dep := stopTimes[fi].DepartureSec()
		arr := stopTimes[ti].ArrivalSec()
		legs = append(legs, model.Leg{
			Kind:          model.LegTrip,
			FromStopID:    from,
			ToStopID:      to,
			FromStopName:  r.stopName(from),
			ToStopName:    r.stopName(to),
			TripID:        tripID,
			RouteID:       routeID,
			ServiceDate:   r.date,
			DepartureSec:  dep,
			ArrivalSec:    arr,
			TravelSeconds: arr - dep,
		})
		n++
	}

	if n == 0 {
		return 0, nil, fmt.Errorf("%w: trip %s does not cover %s -> %s",
			errUnresolvable, tripID, rest[0], rest[1])
	}

	return n, legs, nil
}

func (r *resolver) walkLeg(walk *graph.Edge, cursor int) model.Leg {
	return model.Leg{
		Kind:           model.LegWalk,
		FromStopID:     walk.From,
		ToStopID:       walk.To,
		FromStopName:   r.stopName(walk.From),
		ToStopName:     r.stopName(walk.To),
		ServiceDate:    r.date,
		DepartureSec:   cursor,
		ArrivalSec:     cursor + walk.Seconds,
		TravelSeconds:  walk.Seconds,
		WalkSeconds:    walk.Seconds,
		DistanceMetres: walk.DistanceMetres,
	}
}

func (r *resolver) stopName(stopID string) string {
	if s := r.g.Stop(stopID); s != nil {
		return s.Name
	}
	return ""
}

// nextTrip is the memoized schedule lookup for the earliest trip of
// routeID serving from -> to with departure >= notBeforeSec.
func (r *resolver) nextTrip(routeID, from, to string, notBeforeSec int) (string, error) {
	notBefore := model.SecondsToHHMMSS(notBeforeSec)
	key := tripSelectKey{
		routeID:   routeID,
		fromStop:  from,
		toStop:    to,
		date:      r.date,
		notBefore: notBefore,
	}
	if tripID, ok := r.cache.tripSelect[key]; ok {
		return tripID, nil
	}

	tripID, err := r.reader.NextTrip(storage.TripQuery{
		RouteID:    routeID,
		FromStopID: from,
		ToStopID:   to,
		ServiceIDs: r.services,
		NotBefore:  notBefore,
	})
	if err != nil {
		return "", fmt.Errorf("selecting trip: %w", err)
	}

	r.cache.tripSelect[key] = tripID
	return tripID, nil
}

func (r *resolver) tripStopTimes(tripID string) ([]*model.StopTime, error) {
	if sts, ok := r.cache.stopTimes[tripID]; ok {
		return sts, nil
	}
	sts, err := r.reader.StopTimes(tripID)
	if err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	r.cache.stopTimes[tripID] = sts
	return sts, nil
}
