package live

import (
	"sync/atomic"
	"time"
)

// A service alert, reduced to what the scorer needs: which routes and
// stops it touches.
type Alert struct {
	Header   string
	Cause    string
	Effect   string
	RouteIDs []string
	StopIDs  []string
}

// Snapshot is one complete, immutable view of the live feeds: trip
// cancellations and delays, active alerts, and the freshest vehicle
// position per trip. A new snapshot replaces the old one wholesale on
// every poll; readers never see a partial update.
type Snapshot struct {
	RetrievedAt   time.Time
	FeedTimestamp uint64

	cancelledTrips     map[string]bool
	routeCancellations map[string]int
	delays             map[string]time.Duration
	alertsByRoute      map[string][]*Alert
	alertsByStop       map[string][]*Alert
	vehicleSeen        map[string]time.Time
}

func newSnapshot(retrievedAt time.Time) *Snapshot {
	return &Snapshot{
		RetrievedAt:        retrievedAt,
		cancelledTrips:     map[string]bool{},
		routeCancellations: map[string]int{},
		delays:             map[string]time.Duration{},
		alertsByRoute:      map[string][]*Alert{},
		alertsByStop:       map[string][]*Alert{},
		vehicleSeen:        map[string]time.Time{},
	}
}

// TripCancelled reports whether the trip is cancelled today.
func (s *Snapshot) TripCancelled(tripID string) bool {
	return s.cancelledTrips[tripID]
}

// RouteCancellations is the number of same-day trip cancellations
// attributed to the route.
func (s *Snapshot) RouteCancellations(routeID string) int {
	return s.routeCancellations[routeID]
}

// TripDelay returns the most recent known delay for a trip.
func (s *Snapshot) TripDelay(tripID string) (time.Duration, bool) {
	d, ok := s.delays[tripID]
	return d, ok
}

// AlertCount is the number of distinct active alerts touching the
// route or the stop. An alert informing both counts once.
func (s *Snapshot) AlertCount(routeID, stopID string) int {
	distinct := map[*Alert]bool{}
	for _, a := range s.alertsByRoute[routeID] {
		distinct[a] = true
	}
	for _, a := range s.alertsByStop[stopID] {
		distinct[a] = true
	}
	return len(distinct)
}

// VehicleSeen returns the timestamp of the freshest vehicle position
// reported for the trip.
func (s *Snapshot) VehicleSeen(tripID string) (time.Time, bool) {
	ts, ok := s.vehicleSeen[tripID]
	return ts, ok
}

// Provider publishes snapshots to concurrent readers via an atomic
// swap. The zero value is ready for use.
type Provider struct {
	current atomic.Pointer[Snapshot]
}

// Current returns the latest snapshot, or nil when nothing has been
// polled yet. Callers treat nil as "no live data": scoring degrades
// to historical priors.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Publish swaps in a new snapshot.
func (p *Provider) Publish(s *Snapshot) {
	p.current.Store(s)
}
