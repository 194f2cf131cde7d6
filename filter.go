package planner

import (
	"strings"

	"github.com/dcmshi/transit-planner/model"
)

// Hard constraints applied to every resolved route. Routes failing
// any of them are dropped, never repaired.
type constraints struct {
	maxTransfers       int
	minTransferSeconds int
	maxWalkMetres      float64
}

func (c constraints) admit(legs []model.Leg) bool {
	if !hasTripLeg(legs) {
		return false
	}
	if countTransfers(legs) > c.maxTransfers {
		return false
	}
	if !transferBuffersOK(legs, c.minTransferSeconds) {
		return false
	}
	if totalWalkMetres(legs) > c.maxWalkMetres {
		return false
	}
	return true
}

// A transfer is a route_id change between consecutive trip legs. The
// resolver may legitimately assign different trip_ids to adjacent
// same-route hops; those are not transfers.
func countTransfers(legs []model.Leg) int {
	transfers := 0
	prevRoute := ""
	for _, leg := range legs {
		if leg.Kind != model.LegTrip {
			continue
		}
		if prevRoute != "" && leg.RouteID != prevRoute {
			transfers++
		}
		prevRoute = leg.RouteID
	}
	return transfers
}

// A route with no transit at all is not a route. The walk-only case
// also collapses to an empty trip signature, which would make every
// such journey dedup against every other.
func hasTripLeg(legs []model.Leg) bool {
	for _, leg := range legs {
		if leg.Kind == model.LegTrip {
			return true
		}
	}
	return false
}

// transferBuffersOK requires the minimum buffer between leaving one
// route and departing on another. Pairs are consecutive trip legs;
// walking legs in between carry their own time and simply eat into
// the gap.
func transferBuffersOK(legs []model.Leg, minSeconds int) bool {
	var prev *model.Leg
	for i := range legs {
		cur := &legs[i]
		if cur.Kind != model.LegTrip {
			continue
		}
		if prev != nil && cur.RouteID != prev.RouteID &&
			cur.DepartureSec-prev.ArrivalSec < minSeconds {
			return false
		}
		prev = cur
	}
	return true
}

func totalWalkMetres(legs []model.Leg) float64 {
	total := 0.0
	for _, leg := range legs {
		if leg.Kind == model.LegWalk {
			total += leg.DistanceMetres
		}
	}
	return total
}

// tripSignature is the dedup key for a resolved route: the ordered
// trip_ids of its trip legs, with consecutive repeats collapsed and
// walk legs ignored. Two routes with the same signature are the same
// journey.
func tripSignature(legs []model.Leg) string {
	var ids []string
	for _, leg := range legs {
		if leg.Kind != model.LegTrip {
			continue
		}
		if len(ids) == 0 || ids[len(ids)-1] != leg.TripID {
			ids = append(ids, leg.TripID)
		}
	}
	return strings.Join(ids, "|")
}

// firstTripDeparture returns the departure of the first trip leg, or
// -1 when the route has no trip legs.
func firstTripDeparture(legs []model.Leg) int {
	for _, leg := range legs {
		if leg.Kind == model.LegTrip {
			return leg.DepartureSec
		}
	}
	return -1
}
