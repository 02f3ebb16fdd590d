// Package metrics exposes Prometheus instrumentation for voice sessions
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/parley/internal/resilience"
)

const namespace = "parley"

// Metrics contains all Prometheus metrics for the voice client.
type Metrics struct {
	// Session lifecycle
	SessionState      *prometheus.GaugeVec
	SessionsStarted   prometheus.Counter
	SessionErrors     *prometheus.CounterVec
	ConnectDuration   prometheus.Histogram
	SessionDuration   prometheus.Histogram
	StaleStepsDropped prometheus.Counter

	// Outbound audio
	BlocksSent    prometheus.Counter
	BlocksDropped prometheus.Counter
	SendFailures  prometheus.Counter
	BytesSent     prometheus.Counter

	// Inbound audio and playback
	ChunksReceived prometheus.Counter
	DecodeFailures prometheus.Counter
	LiveBuffers    prometheus.Gauge
	Interruptions  prometheus.Counter

	// Transcript
	TranscriptDeltas *prometheus.CounterVec
	TurnsCompleted   prometheus.Counter

	// Credentials
	TokenRequests *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec

	// Control surface
	WSClients   prometheus.Gauge
	WSCommands  *prometheus.CounterVec
	WSThrottled prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current connection state, 0 for the others",
		}, []string{"state"}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Connect attempts that created a session",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Sessions that ended in the error state, by error code",
		}, []string{"code"}),
		ConnectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time from connect request to setup acknowledgement",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time a session spent connected",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		StaleStepsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_connect_steps_total",
			Help:      "Connect step results discarded because their attempt was superseded",
		}),

		BlocksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_blocks_sent_total",
			Help:      "Microphone blocks encoded and sent",
		}),
		BlocksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_blocks_dropped_total",
			Help:      "Microphone blocks dropped because the sender lagged",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_send_failures_total",
			Help:      "Outbound audio writes that failed",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_sent_total",
			Help:      "Base64 audio bytes written to the connection",
		}),

		ChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_received_total",
			Help:      "Inbound audio parts received",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_decode_failures_total",
			Help:      "Inbound audio parts dropped as undecodable",
		}),
		LiveBuffers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_live_buffers",
			Help:      "Buffers scheduled or playing",
		}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Barge-in signals that flushed playback",
		}),

		TranscriptDeltas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_deltas_total",
			Help:      "Transcript deltas received, by sender",
		}, []string{"sender"}),
		TurnsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Turn completions received",
		}),

		TokenRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Credential requests, by outcome",
		}, []string{"outcome"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"breaker"}),

		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected control-surface clients",
		}),
		WSCommands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_commands_total",
			Help:      "Control commands received, by type",
		}, []string{"type"}),
		WSThrottled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_throttled_total",
			Help:      "Control commands rejected by the rate limiter",
		}),
	}
}

// NewNop returns metrics bound to a private registry, for tests and tools
// that do not export them.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// SetState marks state as the only active connection state.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// BreakerTransition is a resilience hook that tracks breaker state.
func (m *Metrics) BreakerTransition(t resilience.Transition) {
	m.BreakerState.WithLabelValues(t.Breaker).Set(float64(t.To))
}
