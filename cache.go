package planner

import (
	"sync"
	"time"

	"github.com/dcmshi/transit-planner/model"
)

// Per-query memoization. Lives for the duration of one FindRoutes
// call: repeated path prefixes hit the same trip selections and
// stop-time listings without re-querying the schedule store.
type queryCache struct {
	tripSelect map[tripSelectKey]string
	stopTimes  map[string][]*model.StopTime
}

type tripSelectKey struct {
	routeID   string
	fromStop  string
	toStop    string
	date      string
	notBefore string
}

func newQueryCache() *queryCache {
	return &queryCache{
		tripSelect: map[tripSelectKey]string{},
		stopTimes:  map[string][]*model.StopTime{},
	}
}

// Response-level cache for repeated identical queries. Only resolved
// legs are cached; reliability scoring re-runs on every hit so risk
// numbers track the current live snapshot. Invalidated wholesale on
// every static refresh.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[responseKey]responseEntry
}

// responseKey covers every knob that shapes the result set. Two
// queries differing in any constraint must never share an entry.
type responseKey struct {
	origin             string
	dest               string
	date               string
	notBefore          string
	maxRoutes          int
	maxTransfers       int
	minTransferMinutes int
	maxWalkMetres      float64
}

type responseEntry struct {
	routes   [][]model.Leg
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: map[responseKey]responseEntry{},
	}
}

func (c *responseCache) get(key responseKey, now time.Time) ([][]model.Leg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.routes, true
}

func (c *responseCache) put(key responseKey, routes [][]model.Leg, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = responseEntry{routes: routes, storedAt: now}
}

func (c *responseCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[responseKey]responseEntry{}
}
