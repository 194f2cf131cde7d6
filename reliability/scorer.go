package reliability

import (
	"time"

	"github.com/dcmshi/transit-planner/model"
)

// Additive risk bumps per active live modifier. Each active modifier
// can only raise the score; the sum is clamped to [0,1].
const (
	alertBump          = 0.10 // per active alert on the leg's route or stop
	cancellationsBump  = 0.15 // other same-day cancellations on the leg's route
	missingVehicleBump = 0.08 // no vehicle position near departure
	lateNightBump      = 0.05 // departure at or after 22:00
	weekendBump        = 0.03 // weekend service
)

// How close to departure a vehicle position is expected.
const vehicleExpectedWindow = 15 * time.Minute

// Historical priors, as provided by History.
type Priors interface {
	Prior(routeID, stopID string, bucket model.TimeBucket) (float64, error)
}

// Read-only view of the live feeds, as provided by live.Snapshot. A
// nil LiveState degrades scoring to historical priors only.
type LiveState interface {
	TripCancelled(tripID string) bool
	RouteCancellations(routeID string) int
	AlertCount(routeID, stopID string) int
	VehicleSeen(tripID string) (time.Time, bool)
}

// ScoreLegs computes per-leg risk and the route-level aggregate. It
// is a pure function of its inputs: the same legs, priors, snapshot
// and clock yield the same scores. loc is the feed's timezone, used
// to anchor scheduled departures when checking vehicle positions.
func ScoreLegs(legs []model.Leg, priors Priors, snap LiveState, now time.Time, loc *time.Location) ([]model.LegRisk, float64, error) {
	risks := make([]model.LegRisk, len(legs))
	for i, leg := range legs {
		if leg.Kind == model.LegWalk {
			risks[i] = model.LegRisk{RiskScore: 0, RiskLabel: model.RiskLow}
			continue
		}

		risk, err := scoreTripLeg(leg, priors, snap, now, loc)
		if err != nil {
			return nil, 0, err
		}
		risks[i] = risk
	}

	return risks, AggregateRisk(risks), nil
}

// AggregateRisk folds leg risks into the route-level score. The
// weakest link dominates: a route is as risky as its riskiest leg.
// Kept as the single place to change should aggregation move to a
// weighted sum.
func AggregateRisk(risks []model.LegRisk) float64 {
	max := 0.0
	for _, r := range risks {
		if r.RiskScore > max {
			max = r.RiskScore
		}
	}
	return max
}

func scoreTripLeg(leg model.Leg, priors Priors, snap LiveState, now time.Time, loc *time.Location) (model.LegRisk, error) {
	// A cancelled trip is maximal risk, no matter what history or
	// the other modifiers say.
	if snap != nil && snap.TripCancelled(leg.TripID) {
		return model.LegRisk{
			RiskScore:   1.0,
			RiskLabel:   model.RiskHigh,
			IsCancelled: true,
			Modifiers:   []string{"cancelled"},
		}, nil
	}

	bucket := BucketFor(leg.ServiceDate, leg.DepartureSec)
	prior, err := priors.Prior(leg.RouteID, leg.FromStopID, bucket)
	if err != nil {
		return model.LegRisk{}, err
	}

	score := 1 - prior
	var modifiers []string

	if snap != nil {
		if n := snap.AlertCount(leg.RouteID, leg.FromStopID); n > 0 {
			score += alertBump * float64(n)
			modifiers = append(modifiers, "alert")
		}
		if snap.RouteCancellations(leg.RouteID) > 0 {
			score += cancellationsBump
			modifiers = append(modifiers, "route_cancellations")
		}
		if vehicleMissing(leg, snap, now, loc) {
			score += missingVehicleBump
			modifiers = append(modifiers, "vehicle_missing")
		}
	}

	if leg.DepartureSec/3600 >= 22 {
		score += lateNightBump
		modifiers = append(modifiers, "late_night")
	}
	if bucket == model.BucketWeekend {
		score += weekendBump
		modifiers = append(modifiers, "weekend")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return model.LegRisk{
		RiskScore: score,
		RiskLabel: model.LabelForRisk(score),
		Modifiers: modifiers,
	}, nil
}

// vehicleMissing reports whether a vehicle position was expected for
// the leg's trip but none has been seen. Positions are only expected
// close to the scheduled departure.
func vehicleMissing(leg model.Leg, snap LiveState, now time.Time, loc *time.Location) bool {
	day, err := time.ParseInLocation("20060102", leg.ServiceDate, loc)
	if err != nil {
		return false
	}
	departure := day.Add(time.Duration(leg.DepartureSec) * time.Second)

	until := departure.Sub(now)
	if until > vehicleExpectedWindow || until < -vehicleExpectedWindow {
		return false
	}

	_, seen := snap.VehicleSeen(leg.TripID)
	return !seen
}
