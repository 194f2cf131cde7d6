package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_queries_total",
		Help: "Route queries served, by outcome.",
	}, []string{"outcome"})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transit_query_duration_seconds",
		Help:    "End-to-end route query latency.",
		Buckets: prometheus.DefBuckets,
	})

	CandidatesExamined = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transit_query_candidates_examined",
		Help:    "Candidate paths examined per query.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 75, 150},
	})

	ResponseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transit_response_cache_hits_total",
		Help: "Route queries answered from the response cache.",
	})

	GraphBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_graph_builds_total",
		Help: "Stops graph rebuilds, by outcome.",
	}, []string{"outcome"})

	StaticRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_static_refreshes_total",
		Help: "Static feed refresh attempts, by outcome.",
	}, []string{"outcome"})

	LivePolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_live_polls_total",
		Help: "Live feed poll attempts, by outcome.",
	}, []string{"outcome"})
)
