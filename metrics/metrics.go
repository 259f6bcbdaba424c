// Package metrics holds the Prometheus collectors for the counseling
// pipeline. Collectors register with the default registry at init and are
// served by cmd/counseld through promhttp.
//
// Labels never carry user IDs, message text, or masked values.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "counsel"

// Turn outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeFallback     = "fallback"
	OutcomeShortCircuit = "short_circuit"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

var (
	// turnDuration measures whole-turn latency.
	// Labels: outcome
	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "turn",
		Name:      "duration_seconds",
		Help:      "Counseling turn latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
	}, []string{"outcome"})

	// crisisTurns counts turns flagged as crisis.
	crisisTurns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "turn",
		Name:      "crisis_total",
		Help:      "Turns flagged as crisis",
	})

	// generationDuration measures provider calls.
	// Labels: provider, status (ok, error)
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "duration_seconds",
		Help:      "Provider generation latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider", "status"})

	// generationErrors counts failed provider calls.
	// Labels: provider, error_type (llm.ErrorType values)
	generationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "errors_total",
		Help:      "Failed provider calls by error type",
	}, []string{"provider", "error_type"})

	// generationTokens counts tokens reported by providers.
	// Labels: provider, direction (input, output)
	generationTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "tokens_total",
		Help:      "Tokens reported by providers",
	}, []string{"provider", "direction"})

	// piiMasked counts issued placeholders.
	// Labels: type
	piiMasked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pii",
		Name:      "masked_total",
		Help:      "Placeholders issued by type",
	}, []string{"type"})

	// unknownPlaceholders counts placeholders in replies with no mapping.
	unknownPlaceholders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pii",
		Name:      "unknown_placeholders_total",
		Help:      "Placeholders in provider replies that were not in the mapping",
	})

	// phaseTransitions counts relationship phase changes.
	// Labels: from, to, trigger
	phaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relationship",
		Name:      "phase_transitions_total",
		Help:      "Relationship phase changes",
	}, []string{"from", "to", "trigger"})

	// episodesRecorded counts stored episodes.
	// Labels: kind
	episodesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "episodes",
		Name:      "recorded_total",
		Help:      "Episodes recorded by kind",
	}, []string{"kind"})

	// episodesEvicted counts evicted episodes.
	episodesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "episodes",
		Name:      "evicted_total",
		Help:      "Episodes evicted at the cap",
	})

	// storageFailures counts persistence errors that were absorbed.
	// Labels: op
	storageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "failures_total",
		Help:      "Persistence failures absorbed by the pipeline",
	}, []string{"op"})

	// outreachDecisions counts queued outreach messages.
	// Labels: trigger
	outreachDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outreach",
		Name:      "decisions_total",
		Help:      "Outreach messages queued by trigger",
	}, []string{"trigger"})

	// rateLimited counts rejected RPCs.
	// Labels: method
	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "server",
		Name:      "rate_limited_total",
		Help:      "RPCs rejected by the per-user limiter",
	}, []string{"method"})
)

// ObserveTurn records a finished turn.
func ObserveTurn(outcome string, d time.Duration, isCrisis bool) {
	turnDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if isCrisis {
		crisisTurns.Inc()
	}
}

// ObserveGeneration records one provider call.
func ObserveGeneration(provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	generationDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// IncGenerationError counts a failed provider call.
func IncGenerationError(provider, errorType string) {
	generationErrors.WithLabelValues(provider, errorType).Inc()
}

// AddTokens records provider token usage.
func AddTokens(provider string, input, output int64) {
	if input > 0 {
		generationTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		generationTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// AddPIIMasked records issued placeholders of one type.
func AddPIIMasked(piiType string, n int) {
	if n > 0 {
		piiMasked.WithLabelValues(piiType).Add(float64(n))
	}
}

// AddUnknownPlaceholders records placeholders left verbatim in a reply.
func AddUnknownPlaceholders(n int) {
	if n > 0 {
		unknownPlaceholders.Add(float64(n))
	}
}

// IncPhaseTransition records a phase change.
func IncPhaseTransition(from, to, trigger string) {
	phaseTransitions.WithLabelValues(from, to, trigger).Inc()
}

// IncEpisodeRecorded records a stored episode.
func IncEpisodeRecorded(kind string) {
	episodesRecorded.WithLabelValues(kind).Inc()
}

// AddEpisodesEvicted records evictions.
func AddEpisodesEvicted(n int) {
	if n > 0 {
		episodesEvicted.Add(float64(n))
	}
}

// IncStorageFailure records an absorbed persistence error.
func IncStorageFailure(op string) {
	storageFailures.WithLabelValues(op).Inc()
}

// IncOutreach records a queued outreach message.
func IncOutreach(trigger string) {
	outreachDecisions.WithLabelValues(trigger).Inc()
}

// IncRateLimited records a rejected RPC.
func IncRateLimited(method string) {
	rateLimited.WithLabelValues(method).Inc()
}
