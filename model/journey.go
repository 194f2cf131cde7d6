package model

// Journey types produced by the routing engine.

type LegKind int

const (
	LegTrip LegKind = iota
	LegWalk
)

func (k LegKind) String() string {
	if k == LegWalk {
		return "walk"
	}
	return "trip"
}

// One segment of a journey: either aboard a scheduled trip or on
// foot. Kind discriminates which fields are meaningful. Legs chain:
// leg[i].ToStopID == leg[i+1].FromStopID, and DepartureSec/ArrivalSec
// are seconds past midnight (hours may exceed 24 on overnight trips).
// Walk legs carry cursor-derived times so the chain stays continuous.
type Leg struct {
	Kind         LegKind
	FromStopID   string
	ToStopID     string
	FromStopName string
	ToStopName   string
	DepartureSec int
	ArrivalSec   int

	// Trip legs only.
	TripID        string
	RouteID       string
	ServiceDate   string // YYYYMMDD
	TravelSeconds int

	// Walk legs only.
	DistanceMetres float64
	WalkSeconds    int
}

type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// Threshold projection of a 0-1 risk score.
func LabelForRisk(score float64) RiskLabel {
	switch {
	case score < 0.33:
		return RiskLow
	case score < 0.66:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Risk annotation for a single leg.
type LegRisk struct {
	RiskScore   float64
	RiskLabel   RiskLabel
	IsCancelled bool
	Modifiers   []string
}

// A resolved, scored journey. TotalTravelSeconds is the wall-clock
// span from the first leg's departure to the last leg's arrival,
// waits included.
type ScoredRoute struct {
	Legs               []Leg
	LegRisks           []LegRisk
	RiskScore          float64
	RiskLabel          RiskLabel
	Transfers          int
	TotalTravelSeconds int
	TotalWalkMetres    float64
}

// Time-of-day/week bucket used to key historical reliability stats.
type TimeBucket string

const (
	BucketWeekdayAMPeak  TimeBucket = "weekday_am_peak"
	BucketWeekdayPMPeak  TimeBucket = "weekday_pm_peak"
	BucketWeekdayOffpeak TimeBucket = "weekday_offpeak"
	BucketWeekend        TimeBucket = "weekend"
)

// Rolling-window reliability stats for (route, stop, bucket).
type ReliabilityRecord struct {
	RouteID             string
	StopID              string
	TimeBucket          TimeBucket
	ScheduledDepartures int
	ObservedDepartures  int
	TotalDelaySeconds   int
	CancellationCount   int
	WindowStartDate     string // YYYYMMDD
	WindowEndDate       string // YYYYMMDD
}
