package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_requests_total",
			Help: "Total number of briefs handled by final state",
		},
		[]string{"state"}, // delivered|degraded_delivered|failed
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsdesk_request_duration_seconds",
			Help:    "Brief handling duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"state"},
	)

	// Research agent metrics
	AgentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_agent_calls_total",
			Help: "Total number of research agent calls",
		},
		[]string{"agent", "status"}, // success|error|timeout|canceled
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsdesk_agent_duration_seconds",
			Help:    "Research agent call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"agent"},
	)

	// Annotation metrics
	StageDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_stage_degraded_total",
			Help: "Candidates whose annotation stage fell back to neutral values",
		},
		[]string{"stage"},
	)

	// Council metrics
	Arbitrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsdesk_council_arbitrations_total",
			Help: "Debate records resolved by the chair's secondary ranking",
		},
	)

	// Reserve cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_cache_lookups_total",
			Help: "Reserve cache lookups by result",
		},
		[]string{"result"}, // fresh|stale|miss
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_cache_evictions_total",
			Help: "Reserve entries removed by reason",
		},
		[]string{"reason"}, // user_bound|global_bound|invalidated|expired
	)

	// Preference metrics
	PreferenceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_preference_updates_total",
			Help: "Profile updates by outcome",
		},
		[]string{"status"}, // committed|conflict|rejected
	)

	PreferenceRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsdesk_preference_cas_retries_total",
			Help: "Compare-and-swap attempts that lost a race",
		},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsdesk_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"worker"},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsdesk_events_published_total",
			Help: "Kafka events by topic and status",
		},
		[]string{"topic", "status"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			Requests, RequestDuration,
			AgentCalls, AgentLatency,
			StageDegraded,
			Arbitrations,
			CacheLookups, CacheEvictions,
			PreferenceUpdates, PreferenceRetries,
			WorkerExecutions, WorkerDuration,
			EventsPublished,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a finished brief
func RecordRequest(state string, duration time.Duration) {
	Requests.WithLabelValues(state).Inc()
	RequestDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordAgentCall records a research agent invocation
func RecordAgentCall(agent, status string, latency time.Duration) {
	AgentCalls.WithLabelValues(agent, status).Inc()
	AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
}

// RecordStageDegraded counts a degraded stage for one candidate
func RecordStageDegraded(stage string) {
	StageDegraded.WithLabelValues(stage).Inc()
}

// RecordArbitrations adds resolved ties
func RecordArbitrations(n int) {
	if n > 0 {
		Arbitrations.Add(float64(n))
	}
}

// RecordCacheLookup records a reserve cache lookup
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheEviction records removed reserve entries
func RecordCacheEviction(reason string, n int) {
	if n > 0 {
		CacheEvictions.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordPreferenceUpdate records an update outcome and its lost CAS attempts
func RecordPreferenceUpdate(status string, retries int) {
	PreferenceUpdates.WithLabelValues(status).Inc()
	if retries > 0 {
		PreferenceRetries.Add(float64(retries))
	}
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

// RecordEventPublished records a Kafka publish attempt
func RecordEventPublished(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(topic, status).Inc()
}
