package main

import (
	"context"

	"github.com/GriffinCanCode/parley/internal/audio"
	"github.com/GriffinCanCode/parley/internal/live"
	"github.com/GriffinCanCode/parley/internal/session"
)

// The concrete device and network types return concrete handles; these
// wrappers narrow them to the session interfaces.

type microphone struct{ *audio.Microphone }

func (m microphone) Open(ctx context.Context) (session.Capture, error) {
	c, err := m.Microphone.Open(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type speaker struct{ *audio.Speaker }

func (s speaker) Open() (session.Output, error) {
	o, err := s.Speaker.Open()
	if err != nil {
		return nil, err
	}
	return o, nil
}

type dialer struct{ *live.Dialer }

func (d dialer) Dial(ctx context.Context, credential string, setup live.Setup) (session.Conn, error) {
	c, err := d.Dialer.Dial(ctx, credential, setup)
	if err != nil {
		return nil, err
	}
	return c, nil
}
