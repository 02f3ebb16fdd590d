package session

import (
	"context"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/live"
	"github.com/GriffinCanCode/parley/internal/token"
	"github.com/GriffinCanCode/parley/internal/trace"
)

type stepKind int

const (
	stepToken stepKind = iota
	stepPermission
	stepDial
	stepDevices
	stepTimeout
)

var stepNames = [...]string{"token", "permission", "dial", "devices", "timeout"}

func (k stepKind) String() string { return stepNames[k] }

// stepResult is what a connect step posts back to the control loop. Whoever
// drops a result must release the resources it carries.
type stepResult struct {
	gen  uint64
	kind stepKind
	err  error

	cred    token.Credential
	conn    Conn
	capture Capture
	output  Output
}

func (r stepResult) release() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	if r.capture != nil {
		_ = r.capture.Close()
	}
	if r.output != nil {
		_ = r.output.Close()
	}
}

// launch runs step off the control loop and posts its result, tagged with the
// session generation, back to it.
func (c *Controller) launch(s *Session, kind stepKind, step func(ctx context.Context) stepResult) {
	gen, ctx := s.gen, s.ctx
	go func() {
		ctx, span := trace.StartSpan(ctx, "connect."+kind.String())
		r := step(ctx)
		span.Finish(ctx, r.err)
		r.gen, r.kind = gen, kind
		c.post(r)
	}()
}

func (c *Controller) post(r stepResult) {
	select {
	case c.steps <- r:
	case <-c.stopped:
		r.release()
	}
}

func (c *Controller) fetchToken(ctx context.Context) stepResult {
	cred, err := c.deps.Tokens.Fetch(ctx)
	if err != nil {
		return stepResult{err: classify(err, apperrors.CodeTokenFailed, "credential fetch failed")}
	}
	if cred.Name == "" {
		return stepResult{err: apperrors.Token(nil).WithMetadata("reason", "empty token")}
	}
	return stepResult{cred: cred}
}

func (c *Controller) requestPermission(ctx context.Context) stepResult {
	if err := c.deps.Mic.RequestPermission(ctx); err != nil {
		return stepResult{err: classify(err, apperrors.CodePermissionDenied, "capture device unavailable")}
	}
	return stepResult{}
}

func (c *Controller) dial(credential string, setup live.Setup) func(context.Context) stepResult {
	return func(ctx context.Context) stepResult {
		conn, err := c.deps.Dialer.Dial(ctx, credential, setup)
		if err != nil {
			return stepResult{err: classify(err, apperrors.CodeConnectionFailed, "dial live endpoint")}
		}
		return stepResult{conn: conn}
	}
}

// openDevices opens capture and playback together; a half-open pair is
// closed here rather than handed to the loop.
func (c *Controller) openDevices(ctx context.Context) stepResult {
	capture, err := c.deps.Mic.Open(ctx)
	if err != nil {
		return stepResult{err: classify(err, apperrors.CodePermissionDenied, "open capture")}
	}
	out, err := c.deps.Speaker.Open()
	if err != nil {
		_ = capture.Close()
		return stepResult{err: classify(err, apperrors.CodeInternal, "open audio output")}
	}
	return stepResult{capture: capture, output: out}
}

func classify(err error, code apperrors.Code, msg string) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.Wrap(err, code, msg)
}
