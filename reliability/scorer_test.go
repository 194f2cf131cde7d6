package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcmshi/transit-planner/model"
)

type fixedPriors struct {
	prior float64
}

func (p fixedPriors) Prior(routeID, stopID string, bucket model.TimeBucket) (float64, error) {
	return p.prior, nil
}

type fakeLive struct {
	cancelled     map[string]bool
	cancellations map[string]int
	alerts        map[string]int // keyed by route
	vehicles      map[string]time.Time
}

func (l *fakeLive) TripCancelled(tripID string) bool      { return l.cancelled[tripID] }
func (l *fakeLive) RouteCancellations(routeID string) int { return l.cancellations[routeID] }
func (l *fakeLive) AlertCount(routeID, stopID string) int { return l.alerts[routeID] }
func (l *fakeLive) VehicleSeen(tripID string) (time.Time, bool) {
	ts, ok := l.vehicles[tripID]
	return ts, ok
}

func emptyLive() *fakeLive {
	return &fakeLive{
		cancelled:     map[string]bool{},
		cancellations: map[string]int{},
		alerts:        map[string]int{},
		vehicles:      map[string]time.Time{},
	}
}

// Monday mid-day trip leg: no late-night or weekend bumps.
func tripLeg() model.Leg {
	return model.Leg{
		Kind:         model.LegTrip,
		FromStopID:   "s1",
		ToStopID:     "s2",
		TripID:       "t1",
		RouteID:      "r1",
		ServiceDate:  "20250106",
		DepartureSec: 12 * 3600,
		ArrivalSec:   12*3600 + 600,
	}
}

func TestScoreNeutralPrior(t *testing.T) {
	legs := []model.Leg{tripLeg()}
	now := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)

	risks, total, err := ScoreLegs(legs, fixedPriors{NeutralPrior}, nil, now, time.UTC)
	require.NoError(t, err)
	require.Len(t, risks, 1)

	assert.InDelta(t, 0.2, risks[0].RiskScore, 0.0001)
	assert.Equal(t, model.RiskLow, risks[0].RiskLabel)
	assert.False(t, risks[0].IsCancelled)
	assert.InDelta(t, 0.2, total, 0.0001)
}

func TestScoreMonotonicModifiers(t *testing.T) {
	legs := []model.Leg{tripLeg()}
	now := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)
	priors := fixedPriors{NeutralPrior}

	live := emptyLive()
	_, base, err := ScoreLegs(legs, priors, live, now, time.UTC)
	require.NoError(t, err)

	// Each additional modifier can only raise the score
	live.alerts["r1"] = 1
	_, withAlert, err := ScoreLegs(legs, priors, live, now, time.UTC)
	require.NoError(t, err)
	assert.Greater(t, withAlert, base)

	live.cancellations["r1"] = 2
	_, withCancellations, err := ScoreLegs(legs, priors, live, now, time.UTC)
	require.NoError(t, err)
	assert.Greater(t, withCancellations, withAlert)

	// And the score stays in [0,1] no matter how much piles on
	live.alerts["r1"] = 50
	worst := tripLeg()
	worst.DepartureSec = 23 * 3600
	risks, total, err := ScoreLegs([]model.Leg{worst}, fixedPriors{0.1}, live, now, time.UTC)
	require.NoError(t, err)
	assert.LessOrEqual(t, total, 1.0)
	assert.Equal(t, 1.0, risks[0].RiskScore)
	assert.Equal(t, model.RiskHigh, risks[0].RiskLabel)
}

func TestScoreCancelledTrip(t *testing.T) {
	legs := []model.Leg{tripLeg()}
	now := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)

	live := emptyLive()
	live.cancelled["t1"] = true

	risks, total, err := ScoreLegs(legs, fixedPriors{NeutralPrior}, live, now, time.UTC)
	require.NoError(t, err)

	assert.True(t, risks[0].IsCancelled)
	assert.Equal(t, 1.0, risks[0].RiskScore)
	assert.Equal(t, model.RiskHigh, risks[0].RiskLabel)
	assert.Equal(t, 1.0, total)
}

func TestScoreMissingVehicle(t *testing.T) {
	leg := tripLeg()
	legs := []model.Leg{leg}
	priors := fixedPriors{NeutralPrior}
	live := emptyLive()

	// 10 minutes before departure, no position: bump applies
	near := time.Date(2025, 1, 6, 11, 50, 0, 0, time.UTC)
	risks, _, err := ScoreLegs(legs, priors, live, near, time.UTC)
	require.NoError(t, err)
	assert.Contains(t, risks[0].Modifiers, "vehicle_missing")

	// Same moment with a position reported: no bump
	live.vehicles["t1"] = near.Add(-1 * time.Minute)
	risks, _, err = ScoreLegs(legs, priors, live, near, time.UTC)
	require.NoError(t, err)
	assert.NotContains(t, risks[0].Modifiers, "vehicle_missing")

	// Hours before departure nothing is expected yet
	early := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	risks, _, err = ScoreLegs(legs, priors, emptyLive(), early, time.UTC)
	require.NoError(t, err)
	assert.NotContains(t, risks[0].Modifiers, "vehicle_missing")
}

func TestScoreLateNightAndWeekend(t *testing.T) {
	now := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)
	priors := fixedPriors{NeutralPrior}

	late := tripLeg()
	late.DepartureSec = 22*3600 + 1800
	risks, _, err := ScoreLegs([]model.Leg{late}, priors, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Contains(t, risks[0].Modifiers, "late_night")

	weekend := tripLeg()
	weekend.ServiceDate = "20250111" // Saturday
	risks, _, err = ScoreLegs([]model.Leg{weekend}, priors, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Contains(t, risks[0].Modifiers, "weekend")
}

func TestAggregateRiskIsMaxOfLegs(t *testing.T) {
	risks := []model.LegRisk{
		{RiskScore: 0.2},
		{RiskScore: 0.7},
		{RiskScore: 0.4},
	}
	assert.Equal(t, 0.7, AggregateRisk(risks))
	assert.Equal(t, 0.0, AggregateRisk(nil))
}

func TestScoreWalkLegs(t *testing.T) {
	legs := []model.Leg{
		{Kind: model.LegWalk, FromStopID: "s0", ToStopID: "s1", WalkSeconds: 120},
		tripLeg(),
	}
	now := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)

	risks, total, err := ScoreLegs(legs, fixedPriors{NeutralPrior}, nil, now, time.UTC)
	require.NoError(t, err)
	require.Len(t, risks, 2)

	assert.Equal(t, 0.0, risks[0].RiskScore)
	assert.Equal(t, model.RiskLow, risks[0].RiskLabel)
	assert.InDelta(t, 0.2, total, 0.0001)
}
