package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

// State represents circuit breaker state
type State uint32

const (
	Closed   State = iota // Normal operation
	Open                  // Failing fast
	HalfOpen              // Probing the upstream
)

func (s State) String() string {
	return [...]string{"closed", "open", "half-open"}[s]
}

// ErrOpen is returned while the breaker rejects calls. It carries
// CodeUnavailable so callers can report it like any other outage.
var ErrOpen = apperrors.New(apperrors.CodeUnavailable, "upstream failing fast")

// Transition describes one breaker state change.
type Transition struct {
	Breaker  string
	From, To State
	Failures int32
}

// Breaker guards one upstream (the credential endpoint, the genai mint call).
// State is kept in atomics so a hook may read it without locking.
type Breaker struct {
	cfg         Config
	state       atomic.Uint32
	failures    atomic.Int32
	successes   atomic.Int32
	rejected    atomic.Uint64
	lastFailure atomic.Int64 // unix nano
	hook        func(Transition)
	now         func() time.Time
}

// New creates a breaker with config
func New(cfg Config) *Breaker {
	b := &Breaker{cfg: cfg.withDefaults(), now: time.Now}
	b.state.Store(uint32(Closed))
	return b
}

// WithHook sets the transition callback, typically a metrics gauge.
func (b *Breaker) WithHook(fn func(Transition)) *Breaker {
	b.hook = fn
	return b
}

func (b *Breaker) Name() string { return b.cfg.Name }

// Allow returns ErrOpen while the upstream is considered down. Once
// ResetTimeout has passed it lets probes through in HalfOpen.
func (b *Breaker) Allow() error {
	if State(b.state.Load()) != Open {
		return nil
	}
	if b.shouldAttemptReset() {
		b.transition(HalfOpen)
		return nil
	}
	b.rejected.Add(1)
	return ErrOpen
}

// Record feeds the outcome of an allowed call back into the breaker.
// Cancellation is the caller giving up, not the upstream failing, so it
// counts as neither.
func (b *Breaker) Record(err error) {
	switch {
	case err == nil:
		b.success()
	case errors.Is(err, context.Canceled), errors.Is(err, ErrOpen):
	default:
		b.failure()
	}
}

// Rejected reports how many calls Allow turned away.
func (b *Breaker) Rejected() uint64 { return b.rejected.Load() }

func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Reset forces breaker to closed state
func (b *Breaker) Reset() {
	b.transition(Closed)
}

func (b *Breaker) success() {
	switch State(b.state.Load()) {
	case HalfOpen:
		if b.successes.Add(1) >= int32(b.cfg.HalfOpenSuccesses) {
			b.transition(Closed)
		}
	case Closed:
		b.failures.Store(0)
	}
}

func (b *Breaker) failure() {
	b.lastFailure.Store(b.now().UnixNano())
	count := b.failures.Add(1)

	switch State(b.state.Load()) {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		if count >= int32(b.cfg.Threshold) {
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}
	t := Transition{Breaker: b.cfg.Name, From: from, To: to, Failures: b.failures.Load()}

	switch to {
	case Closed:
		b.failures.Store(0)
		b.successes.Store(0)
		slog.Info("upstream recovered", "breaker", t.Breaker)
	case Open:
		b.successes.Store(0)
		slog.Warn("upstream failing, rejecting calls", "breaker", t.Breaker, "failures", t.Failures, "retry_in", b.cfg.ResetTimeout)
	case HalfOpen:
		b.successes.Store(0)
		slog.Info("probing upstream", "breaker", t.Breaker)
	}

	if b.hook != nil {
		b.hook(t)
	}
}

func (b *Breaker) shouldAttemptReset() bool {
	last := b.lastFailure.Load()
	if last == 0 {
		return true
	}
	return b.now().Sub(time.Unix(0, last)) > b.cfg.ResetTimeout
}
