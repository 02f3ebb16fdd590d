package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GriffinCanCode/parley/internal/resilience"
)

func TestNewRegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BlocksSent.Inc()
	m.TranscriptDeltas.WithLabelValues("user").Add(2)

	if got := testutil.ToFloat64(m.BlocksSent); got != 1 {
		t.Errorf("BlocksSent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TranscriptDeltas.WithLabelValues("user")); got != 2 {
		t.Errorf("TranscriptDeltas{user} = %v, want 2", got)
	}

	// A second set on its own registry must not collide.
	_ = NewNop()
}

func TestSetState(t *testing.T) {
	m := NewNop()
	all := []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "ERROR"}
	m.SetState("CONNECTING", all)
	m.SetState("CONNECTED", all)

	for _, s := range all {
		want := 0.0
		if s == "CONNECTED" {
			want = 1
		}
		if got := testutil.ToFloat64(m.SessionState.WithLabelValues(s)); got != want {
			t.Errorf("session_state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestBreakerTransition(t *testing.T) {
	m := NewNop()
	b := resilience.New(resilience.Config{Name: "token", Threshold: 1}).WithHook(m.BreakerTransition)
	b.Record(errors.New("upstream down"))

	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("token")); got != float64(resilience.Open) {
		t.Errorf("breaker_state{token} = %v, want %v", got, float64(resilience.Open))
	}

	b.Reset()
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("token")); got != 0 {
		t.Errorf("breaker_state{token} after reset = %v, want 0", got)
	}
}
