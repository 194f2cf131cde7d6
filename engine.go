// Package planner ranks journeys between transit stops by estimated
// real-world reliability rather than scheduled speed. Candidate paths
// come from k-shortest-path search over a stops multigraph, get
// resolved against the schedule into timed legs, filtered, and scored
// by fusing historical reliability with live feed signals.
package planner

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dcmshi/transit-planner/config"
	"github.com/dcmshi/transit-planner/graph"
	"github.com/dcmshi/transit-planner/live"
	"github.com/dcmshi/transit-planner/metrics"
	"github.com/dcmshi/transit-planner/model"
	"github.com/dcmshi/transit-planner/reliability"
	"github.com/dcmshi/transit-planner/storage"
)

const (
	// Candidate paths examined per query, as a multiple of
	// MaxRoutes. Bounds search work on high-branching walk-edge
	// graphs.
	candidateMultiplier = 15

	responseCacheTTL = time.Hour

	// 23:59:59; the backfill cursor never advances past day's end.
	maxDaySeconds = 23*3600 + 59*60 + 59
)

// One route search. Zero-valued knobs fall back to the engine's
// configured defaults.
type Query struct {
	Origin      string `validate:"required"`
	Destination string `validate:"required,nefield=Origin"`
	Date        string `validate:"required,datetime=20060102"`
	NotBefore   string `validate:"required,datetime=15:04:05"`

	MaxRoutes          int     `validate:"min=1,max=10"`
	MaxTransfers       int     `validate:"min=0,max=5"`
	MinTransferMinutes int     `validate:"min=0,max=60"`
	MaxWalkMetres      float64 `validate:"min=0,max=5000"`
}

// Engine runs the search/resolve/filter/score pipeline. Queries are
// sequential per call; the graph, the active feed and the live
// snapshot are all swapped atomically underneath by their background
// writers.
type Engine struct {
	builder  *graph.Builder
	history  *reliability.History
	live     *live.Provider
	defaults config.RoutingConfig

	feed      atomic.Pointer[feedState]
	respCache *responseCache
	validate  *validator.Validate

	// Injectable clock, for scoring tests.
	timeNow func() time.Time
}

type feedState struct {
	hash     string
	reader   storage.FeedReader
	timezone *time.Location
}

func NewEngine(builder *graph.Builder, history *reliability.History, liveProvider *live.Provider, defaults config.RoutingConfig) *Engine {
	return &Engine{
		builder:   builder,
		history:   history,
		live:      liveProvider,
		defaults:  defaults,
		respCache: newResponseCache(responseCacheTTL),
		validate:  validator.New(),
		timeNow:   time.Now,
	}
}

// SetFeed points the engine at a (newly ingested) feed and drops all
// cached responses.
func (e *Engine) SetFeed(hash string, reader storage.FeedReader, timezone *time.Location) {
	e.feed.Store(&feedState{hash: hash, reader: reader, timezone: timezone})
	e.respCache.invalidate()
}

// InvalidateCaches drops every cached response. Called on manual data
// ingestion.
func (e *Engine) InvalidateCaches() {
	e.respCache.invalidate()
}

// FindRoutes returns up to q.MaxRoutes scored routes from origin to
// destination, cheapest-first. Risk scores always reflect the current
// live snapshot, even on response cache hits.
func (e *Engine) FindRoutes(q Query) ([]model.ScoredRoute, error) {
	started := e.timeNow()
	routes, err := e.findRoutes(q)
	metrics.QueryDuration.Observe(e.timeNow().Sub(started).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	return routes, nil
}

func (e *Engine) findRoutes(q Query) ([]model.ScoredRoute, error) {
	e.applyDefaults(&q)
	if err := e.validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	g, err := e.builder.Current()
	if err != nil {
		return nil, err
	}
	fs := e.feed.Load()
	if fs == nil {
		return nil, graph.ErrNotBuilt
	}

	if g.Stop(q.Origin) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStop, q.Origin)
	}
	if g.Stop(q.Destination) == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStop, q.Destination)
	}

	notBeforeSec := model.HHMMSSToSeconds(
		q.NotBefore[0:2] + q.NotBefore[3:5] + q.NotBefore[6:8])

	cacheKey := responseKey{
		origin:             q.Origin,
		dest:               q.Destination,
		date:               q.Date,
		notBefore:          q.NotBefore,
		maxRoutes:          q.MaxRoutes,
		maxTransfers:       q.MaxTransfers,
		minTransferMinutes: q.MinTransferMinutes,
		maxWalkMetres:      q.MaxWalkMetres,
	}
	if cached, ok := e.respCache.get(cacheKey, e.timeNow()); ok {
		metrics.ResponseCacheHits.Inc()
		return e.scoreRoutes(cached, fs)
	}

	legsSets, err := e.search(q, g, fs, notBeforeSec)
	if err != nil {
		return nil, err
	}

	e.respCache.put(cacheKey, legsSets, e.timeNow())
	return e.scoreRoutes(legsSets, fs)
}

// search runs candidate generation, resolution, filtering, dedup and
// backfill, returning up to MaxRoutes leg sequences in cost order.
func (e *Engine) search(q Query, g *graph.Graph, fs *feedState, notBeforeSec int) ([][]model.Leg, error) {
	services, err := fs.reader.ActiveServices(q.Date)
	if err != nil {
		return nil, fmt.Errorf("reading active services: %w", err)
	}

	res := &resolver{
		g:                  g,
		reader:             fs.reader,
		date:               q.Date,
		services:           services,
		cache:              newQueryCache(),
		minTransferSeconds: q.MinTransferMinutes * 60,
	}
	cons := constraints{
		maxTransfers:       q.MaxTransfers,
		minTransferSeconds: q.MinTransferMinutes * 60,
		maxWalkMetres:      q.MaxWalkMetres,
	}

	var accepted [][]model.Leg
	seen := map[string]bool{}

	// Backfill queue: paths already resolved once, to be retried
	// with a later cursor if slots remain.
	type backfillEntry struct {
		path   []string
		cursor int
	}
	var backfill []backfillEntry

	admit := func(path []string, legs []model.Leg) {
		sig := tripSignature(legs)
		if seen[sig] {
			return
		}
		seen[sig] = true

		if !cons.admit(legs) {
			return
		}
		accepted = append(accepted, legs)

		// Only accepted routes earn a later-departure retry.
		if dep := firstTripDeparture(legs); dep >= 0 && dep+1 <= maxDaySeconds {
			backfill = append(backfill, backfillEntry{path: path, cursor: dep + 1})
		}
	}

	search := newPathSearch(g.Project(), q.Origin, q.Destination)
	budget := q.MaxRoutes * candidateMultiplier
	examined := 0
	for examined < budget && len(accepted) < q.MaxRoutes {
		path, _, ok := search.Next()
		if !ok {
			break
		}
		examined++

		legs, err := res.resolve(path, notBeforeSec)
		if err != nil {
			if errors.Is(err, errUnresolvable) {
				log.Printf("skipping candidate: %v", err)
				continue
			}
			return nil, err
		}
		admit(path, legs)
	}
	metrics.CandidatesExamined.Observe(float64(examined))

	// Backfill: re-resolve known paths past their previous first
	// departure, round-robin, until slots fill or the day ends.
	for len(accepted) < q.MaxRoutes && len(backfill) > 0 {
		entry := backfill[0]
		backfill = backfill[1:]

		legs, err := res.resolve(entry.path, entry.cursor)
		if err != nil {
			if errors.Is(err, errUnresolvable) {
				continue
			}
			return nil, err
		}
		admit(entry.path, legs)
	}

	if len(accepted) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPathFound, q.Origin, q.Destination)
	}

	return accepted, nil
}

// scoreRoutes attaches risk to resolved leg sequences. Runs on every
// response, cached or not: risk must track the live snapshot.
func (e *Engine) scoreRoutes(legsSets [][]model.Leg, fs *feedState) ([]model.ScoredRoute, error) {
	var liveState reliability.LiveState
	if snap := e.live.Current(); snap != nil {
		liveState = snap
	}
	now := e.timeNow()

	routes := make([]model.ScoredRoute, 0, len(legsSets))
	for _, legs := range legsSets {
		legRisks, score, err := reliability.ScoreLegs(legs, e.history, liveState, now, fs.timezone)
		if err != nil {
			return nil, fmt.Errorf("scoring route: %w", err)
		}

		routes = append(routes, model.ScoredRoute{
			Legs:               legs,
			LegRisks:           legRisks,
			RiskScore:          score,
			RiskLabel:          model.LabelForRisk(score),
			Transfers:          countTransfers(legs),
			TotalTravelSeconds: legs[len(legs)-1].ArrivalSec - legs[0].DepartureSec,
			TotalWalkMetres:    totalWalkMetres(legs),
		})
	}
	return routes, nil
}

func (e *Engine) applyDefaults(q *Query) {
	if q.MaxRoutes == 0 {
		q.MaxRoutes = e.defaults.MaxRoutes
	}
	if q.MaxTransfers == 0 {
		q.MaxTransfers = e.defaults.MaxTransfers
	}
	if q.MinTransferMinutes == 0 {
		q.MinTransferMinutes = e.defaults.MinTransferMinutes
	}
	if q.MaxWalkMetres == 0 {
		q.MaxWalkMetres = e.defaults.MaxWalkMetres
	}
}
