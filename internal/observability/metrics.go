package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Utterance metrics
	activeUtterances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narration_gateway_active_utterances",
		Help: "Number of utterances queued or playing",
	})

	totalUtterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_gateway_utterances_total",
		Help: "Total number of utterances processed",
	})

	utteranceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "narration_gateway_utterance_duration_seconds",
		Help:    "Wall-clock duration of utterance playback in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// Fragment metrics
	fragmentsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_gateway_fragments_scheduled_total",
		Help: "Total number of audio fragments scheduled for playback",
	})

	fragmentsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_gateway_fragments_skipped_total",
		Help: "Total number of fragments skipped (zero samples after decode)",
	})

	schedulingUnderruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narration_gateway_scheduling_underruns_total",
		Help: "Fragments whose cursor fell behind the audio clock",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narration_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "narration_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narration_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narration_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single narration session
type Metrics struct {
	sessionID          string
	startTime          time.Time
	utteranceStartTime time.Time
	mu                 sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordUtteranceStart records an utterance entering playback
func (m *Metrics) RecordUtteranceStart() {
	m.mu.Lock()
	m.utteranceStartTime = time.Now()
	m.mu.Unlock()

	activeUtterances.Inc()
	totalUtterances.Inc()
}

// RecordUtteranceEnd records an utterance finishing (or being rejected)
func (m *Metrics) RecordUtteranceEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	activeUtterances.Dec()
	if !m.utteranceStartTime.IsZero() {
		utteranceDuration.Observe(time.Since(m.utteranceStartTime).Seconds())
		m.utteranceStartTime = time.Time{}
	}
}

// RecordFragmentScheduled records a fragment handed to the output graph
func (m *Metrics) RecordFragmentScheduled() {
	fragmentsScheduled.Inc()
}

// RecordFragmentSkipped records a fragment that decoded to zero samples
func (m *Metrics) RecordFragmentSkipped() {
	fragmentsSkipped.Inc()
}

// RecordUnderrun records a fragment scheduled behind the audio clock
func (m *Metrics) RecordUnderrun() {
	schedulingUnderruns.Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordComponentError increments the error counter outside a session scope
func RecordComponentError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
