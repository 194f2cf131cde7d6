package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dcmshi/transit-planner/model"
)

func TestResponseCache(t *testing.T) {
	c := newResponseCache(time.Hour)
	now := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	key := responseKey{
		origin:             "A",
		dest:               "C",
		date:               "20250106",
		notBefore:          "08:00:00",
		maxRoutes:          3,
		maxTransfers:       2,
		minTransferMinutes: 5,
		maxWalkMetres:      500,
	}
	routes := [][]model.Leg{{trip("t1", "r1", 28800, 30300)}}

	_, ok := c.get(key, now)
	assert.False(t, ok)

	c.put(key, routes, now)

	got, ok := c.get(key, now.Add(30*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, routes, got)

	// Any differing knob misses: cached legs for a looser query
	// must never serve a stricter one.
	for _, mutate := range []func(*responseKey){
		func(k *responseKey) { k.maxRoutes = 5 },
		func(k *responseKey) { k.maxTransfers = 1 },
		func(k *responseKey) { k.minTransferMinutes = 15 },
		func(k *responseKey) { k.maxWalkMetres = 100 },
	} {
		other := key
		mutate(&other)
		_, ok = c.get(other, now)
		assert.False(t, ok)
	}

	// Entries expire after the TTL.
	_, ok = c.get(key, now.Add(61*time.Minute))
	assert.False(t, ok)
}

func TestResponseCacheInvalidate(t *testing.T) {
	c := newResponseCache(time.Hour)
	now := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

	key := responseKey{origin: "A", dest: "B", date: "20250106", notBefore: "08:00:00", maxRoutes: 3}
	c.put(key, [][]model.Leg{{trip("t1", "r1", 0, 600)}}, now)

	c.invalidate()

	_, ok := c.get(key, now)
	assert.False(t, ok)
}
