package session

import (
	"context"
	"time"

	"github.com/GriffinCanCode/parley/internal/live"
	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/pcm"
	"github.com/GriffinCanCode/parley/internal/persona"
	"github.com/GriffinCanCode/parley/internal/playback"
	"github.com/GriffinCanCode/parley/internal/token"
)

// Microphone grants access to an input device and opens capture on it.
type Microphone interface {
	RequestPermission(ctx context.Context) error
	Open(ctx context.Context) (Capture, error)
}

// Capture is a running capture pipeline. Blocks is closed when capture stops.
type Capture interface {
	Blocks() <-chan []float32
	SetMuted(muted bool)
	Close() error
}

// Speaker opens an output timeline for model audio.
type Speaker interface {
	Open() (Output, error)
}

// Output is an open playback device.
type Output interface {
	playback.Timeline
	Close() error
}

// Dialer opens the remote streaming connection.
type Dialer interface {
	Dial(ctx context.Context, credential string, setup live.Setup) (Conn, error)
}

// Conn is an open remote connection. Events is closed when the connection
// ends, after which Err reports why (nil for a local close).
type Conn interface {
	Send(ctx context.Context, env pcm.Envelope) error
	Events() <-chan live.Event
	Err() error
	Close() error
}

// Deps wires a Controller to its collaborators.
type Deps struct {
	Tokens   token.Source
	Mic      Microphone
	Speaker  Speaker
	Dialer   Dialer
	Catalog  *persona.Catalog
	Observer Observer
	Metrics  *metrics.Metrics

	Model          string
	ConnectTimeout time.Duration
	OutputRate     int // assumed rate for inbound audio without a rate tag
}

func (d *Deps) defaults() {
	if d.Catalog == nil {
		d.Catalog = persona.Default()
	}
	if d.Observer == nil {
		d.Observer = Observers(nil)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Model == "" {
		d.Model = live.DefaultModel
	}
	if d.ConnectTimeout <= 0 {
		d.ConnectTimeout = DefaultConnectTimeout
	}
	if d.OutputRate <= 0 {
		d.OutputRate = pcm.OutputSampleRate
	}
}
