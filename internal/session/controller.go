package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/live"
	"github.com/GriffinCanCode/parley/internal/pcm"
	"github.com/GriffinCanCode/parley/internal/persona"
	"github.com/GriffinCanCode/parley/internal/playback"
	"github.com/GriffinCanCode/parley/internal/syncx"
	"github.com/GriffinCanCode/parley/internal/trace"
	"github.com/GriffinCanCode/parley/internal/transcript"
)

// Session is one live conversation, from Connect until teardown. It is owned
// by the control loop; nothing else touches it.
type Session struct {
	ID          string
	Credential  string
	Voice       string
	Instruction string
	Config      persona.ConnectConfig

	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	started time.Time

	conn      Conn
	capture   Capture
	output    Output
	scheduler *playback.Scheduler

	setupDone    bool
	devicesReady bool
	connected    bool
	muted        bool // applied when the capture opens
	connectedAt  time.Time
	senderDone   chan struct{}
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdMute
)

type command struct {
	kind  cmdKind
	cfg   persona.ConnectConfig
	muted bool
	done  chan struct{}
}

// inbound carries a remote event, or the end of the link when closed is set.
type inbound struct {
	gen    uint64
	event  live.Event
	closed bool
	err    error
}

type level struct {
	gen   uint64
	value float64
}

// Controller drives the session state machine. Every state change happens on
// the goroutine running Run; the exported methods only post commands to it.
type Controller struct {
	deps Deps

	cmds    chan command
	steps   chan stepResult
	inbound chan inbound
	levels  chan level
	stopped chan struct{}

	status     *syncx.RWGuard[Status]
	transcript *transcript.Reconciler

	// control loop only
	session *Session
	gen     uint64
}

// New creates a controller. Call Run exactly once to start it.
func New(deps Deps) *Controller {
	deps.defaults()
	return &Controller{
		deps:       deps,
		cmds:       make(chan command, CommandBuffer),
		steps:      make(chan stepResult, StepBuffer),
		inbound:    make(chan inbound, InboundBuffer),
		levels:     make(chan level, LevelBuffer),
		stopped:    make(chan struct{}),
		status:     syncx.NewGuard(Status{State: StateDisconnected}),
		transcript: transcript.NewReconciler(),
	}
}

// Run is the control loop. It returns when ctx is cancelled, after releasing
// any live session.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	log := trace.Logger(ctx)
	log.Info("session controller started")
	c.deps.Metrics.SetState(string(StateDisconnected), AllStates)

	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			log.Info("session controller stopped")
			return nil
		case cmd := <-c.cmds:
			c.handleCommand(ctx, cmd)
		case r := <-c.steps:
			c.handleStep(r)
		case m := <-c.inbound:
			c.handleInbound(m)
		case l := <-c.levels:
			if s := c.session; s != nil && s.gen == l.gen && s.connected {
				c.deps.Observer.OnAudioLevel(l.value, DirectionInput)
			}
		}
	}
}

// Connect starts a session with cfg. It is a no-op while a session is
// connecting or connected. Progress is reported through the Observer.
func (c *Controller) Connect(cfg persona.ConnectConfig) {
	c.submit(command{kind: cmdConnect, cfg: cfg})
}

// Disconnect ends the current session, if any, and returns once its resources
// are released. It is safe from any state and any number of times.
func (c *Controller) Disconnect() {
	done := make(chan struct{})
	if !c.submit(command{kind: cmdDisconnect, done: done}) {
		return
	}
	select {
	case <-done:
	case <-c.stopped:
	}
}

// SetMute silences capture for the current session. Without a session it
// does nothing; every session starts unmuted.
func (c *Controller) SetMute(muted bool) {
	c.submit(command{kind: cmdMute, muted: muted})
}

// State returns the current connection state.
func (c *Controller) State() State {
	return syncx.View(c.status, func(s Status) State { return s.State })
}

// Status returns a snapshot of state, error message and mute flag.
func (c *Controller) Status() Status {
	return c.status.Get()
}

// Transcript returns the raw transcript of the current or last session.
func (c *Controller) Transcript() []transcript.Item {
	return c.transcript.Items()
}

func (c *Controller) submit(cmd command) bool {
	select {
	case c.cmds <- cmd:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdConnect:
		c.connect(ctx, cmd.cfg)
	case cmdDisconnect:
		c.disconnect()
		close(cmd.done)
	case cmdMute:
		s := c.session
		if s == nil {
			trace.Logger(ctx).Debug("mute ignored without a session", "muted", cmd.muted)
			return
		}
		s.muted = cmd.muted
		c.status.Write(func(st *Status) { st.Muted = cmd.muted })
		if s.capture != nil {
			s.capture.SetMuted(cmd.muted)
		}
	}
}

func (c *Controller) connect(ctx context.Context, cfg persona.ConnectConfig) {
	if st := c.State(); st == StateConnecting || st == StateConnected {
		trace.Logger(ctx).Debug("connect ignored", "state", st)
		return
	}

	c.gen++
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(trace.StartSession(ctx, id))
	s := &Session{ID: id, gen: c.gen, ctx: sctx, cancel: cancel, started: time.Now()}
	c.session = s
	c.transcript.Reset()
	c.deps.Metrics.SessionsStarted.Inc()
	c.status.Write(func(st *Status) { st.SessionID = id })
	c.setState(StateConnecting, "")

	resolved, err := c.deps.Catalog.Resolve(cfg)
	if err == nil {
		s.Instruction, err = c.deps.Catalog.Instruction(resolved)
	}
	if err != nil {
		c.fail(s, err)
		return
	}
	s.Config, s.Voice = resolved, resolved.Voice

	gen := s.gen
	s.timer = time.AfterFunc(c.deps.ConnectTimeout, func() {
		c.post(stepResult{gen: gen, kind: stepTimeout})
	})
	trace.Logger(sctx).Info("connecting",
		"language", resolved.LanguageCode,
		"level", resolved.Proficiency,
		"voice", resolved.Voice,
		"topic", resolved.Topic)
	c.launch(s, stepToken, c.fetchToken)
}

func (c *Controller) handleStep(r stepResult) {
	s := c.session
	if s == nil || r.gen != s.gen {
		if r.kind != stepTimeout {
			c.deps.Metrics.StaleStepsDropped.Inc()
		}
		r.release()
		return
	}

	if r.kind == stepTimeout {
		if !s.connected {
			c.fail(s, apperrors.Newf(apperrors.CodeTimeout, "no setup acknowledgement within %s", c.deps.ConnectTimeout))
		}
		return
	}
	if r.err != nil {
		r.release()
		c.fail(s, r.err)
		return
	}

	trace.Logger(s.ctx).Debug("connect step done", "step", r.kind.String(), "elapsed", time.Since(s.started))
	switch r.kind {
	case stepToken:
		s.Credential = r.cred.Name
		c.launch(s, stepPermission, c.requestPermission)
	case stepPermission:
		setup := live.Setup{Model: c.deps.Model, Voice: s.Voice, Instruction: s.Instruction}
		c.launch(s, stepDial, c.dial(s.Credential, setup))
	case stepDial:
		s.conn = r.conn
		go c.forward(s.gen, r.conn)
		c.launch(s, stepDevices, c.openDevices)
	case stepDevices:
		s.capture, s.output = r.capture, r.output
		s.capture.SetMuted(s.muted)
		s.scheduler = playback.NewScheduler(s.output)
		s.devicesReady = true
		c.maybeConnected(s)
	}
}

// forward moves remote events into the control loop in arrival order.
func (c *Controller) forward(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		select {
		case c.inbound <- inbound{gen: gen, event: ev}:
		case <-c.stopped:
			return
		}
	}
	select {
	case c.inbound <- inbound{gen: gen, closed: true, err: conn.Err()}:
	case <-c.stopped:
	}
}

func (c *Controller) handleInbound(m inbound) {
	s := c.session
	if s == nil || m.gen != s.gen {
		return
	}
	if m.closed {
		err := m.err
		if err == nil {
			err = apperrors.Connection(errors.New("closed by server"), "live connection closed")
		}
		c.fail(s, classify(err, apperrors.CodeConnectionFailed, "live connection lost"))
		return
	}
	c.dispatch(s, m.event)
}

func (c *Controller) dispatch(s *Session, ev live.Event) {
	log := trace.Logger(s.ctx)
	switch ev := ev.(type) {
	case live.SetupComplete:
		s.setupDone = true
		c.maybeConnected(s)
		return
	case live.GoAway:
		log.Warn("server going away", "time_left", ev.TimeLeft)
		return
	}

	if !s.connected {
		log.Debug("event before setup dropped", "event", fmt.Sprintf("%T", ev))
		return
	}

	m := c.deps.Metrics
	switch ev := ev.(type) {
	case live.Interrupted:
		s.scheduler.Interrupt()
		m.Interruptions.Inc()
		m.LiveBuffers.Set(0)
		log.Debug("playback interrupted")
	case live.InputTranscript:
		c.partial(transcript.User, ev.Text)
	case live.OutputTranscript:
		c.partial(transcript.Model, ev.Text)
	case live.AudioChunk:
		c.play(s, ev)
	case live.TurnComplete:
		for _, item := range c.transcript.Complete() {
			c.deps.Observer.OnTranscript(item)
		}
		m.TurnsCompleted.Inc()
	default:
		log.Warn("unhandled event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) partial(sender transcript.Sender, delta string) {
	c.deps.Metrics.TranscriptDeltas.WithLabelValues(string(sender)).Inc()
	if item, ok := c.transcript.Partial(sender, delta); ok {
		c.deps.Observer.OnTranscript(item)
	}
}

// play decodes one chunk and queues it. A bad chunk is dropped; the session
// carries on.
func (c *Controller) play(s *Session, chunk live.AudioChunk) {
	m := c.deps.Metrics
	m.ChunksReceived.Inc()

	rate := chunk.SampleRate
	if rate <= 0 {
		rate = c.deps.OutputRate
	}
	buf, err := pcm.Decode(chunk.Data, rate, 1)
	if err != nil {
		m.DecodeFailures.Inc()
		trace.Logger(s.ctx).Warn("dropping undecodable audio chunk", "error", err)
		return
	}

	c.deps.Observer.OnAudioLevel(pcm.Level(buf.Channels[0]), DirectionOutput)
	s.scheduler.Enqueue(buf)
	m.LiveBuffers.Set(float64(s.scheduler.Live()))
}

func (c *Controller) maybeConnected(s *Session) {
	if s.connected || !s.setupDone || !s.devicesReady {
		return
	}
	s.connected = true
	s.connectedAt = time.Now()
	s.timer.Stop()
	c.deps.Metrics.ConnectDuration.Observe(s.connectedAt.Sub(s.started).Seconds())

	s.senderDone = make(chan struct{})
	go c.sendLoop(s.ctx, s.gen, s.conn, s.capture.Blocks(), s.senderDone)

	trace.Logger(s.ctx).Info("session connected", "setup", s.connectedAt.Sub(s.started))
	c.setState(StateConnected, "")
}

// sendLoop encodes capture blocks and sends them in production order, one
// send per block. The first send failure ends the session, and so does the
// capture stream ending on its own.
func (c *Controller) sendLoop(ctx context.Context, gen uint64, conn Conn, blocks <-chan []float32, done chan struct{}) {
	defer close(done)
	m := c.deps.Metrics
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				select {
				case c.inbound <- inbound{gen: gen, closed: true, err: apperrors.Capture(errors.New("capture stream ended"))}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case c.levels <- level{gen: gen, value: pcm.Level(block)}:
			default:
			}

			if err := conn.Send(ctx, pcm.Encode(block)); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.SendFailures.Inc()
				select {
				case c.inbound <- inbound{gen: gen, closed: true, err: apperrors.Connection(err, "send audio")}:
				case <-ctx.Done():
				}
				return
			}
			m.BlocksSent.Inc()
			m.BytesSent.Add(float64(len(block) * pcm.BytesPerSample))
		}
	}
}

func (c *Controller) disconnect() {
	if s := c.session; s != nil {
		trace.Logger(s.ctx).Info("disconnecting")
		c.teardown(s)
		c.session = nil
	}
	c.setState(StateDisconnected, "")
}

func (c *Controller) fail(s *Session, err error) {
	code := apperrors.CodeOf(err)
	trace.Logger(s.ctx).Error("session failed", "code", code.String(), "error", err)

	c.teardown(s)
	c.session = nil
	c.deps.Metrics.SessionErrors.WithLabelValues(code.String()).Inc()

	msg := apperrors.UserMessage(err)
	c.deps.Observer.OnError(msg)
	c.setState(StateError, msg)
}

// teardown releases everything the session owns. Each step runs regardless of
// the others failing.
func (c *Controller) teardown(s *Session) {
	log := trace.Logger(s.ctx)
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Interrupt()
	}
	s.cancel()
	c.status.Write(func(st *Status) { st.Muted = false })
	if s.conn != nil {
		closeQuietly(log, "connection", s.conn.Close)
	}
	if s.senderDone != nil {
		<-s.senderDone
	}
	if s.capture != nil {
		closeQuietly(log, "capture", s.capture.Close)
	}
	if s.output != nil {
		closeQuietly(log, "output", s.output.Close)
	}
	if s.connected {
		c.deps.Metrics.SessionDuration.Observe(time.Since(s.connectedAt).Seconds())
	}
	c.deps.Metrics.LiveBuffers.Set(0)

	s.conn, s.capture, s.output, s.scheduler, s.senderDone = nil, nil, nil, nil, nil
	s.connected = false
	log.Info("session released")
}

func closeQuietly(log *slog.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Debug("close failed", "resource", what, "error", err)
	}
}

func (c *Controller) setState(state State, msg string) {
	changed := syncx.Update(c.status, func(st *Status) bool {
		if st.State == state && st.Error == msg {
			return false
		}
		st.State, st.Error = state, msg
		return true
	})
	if !changed {
		return
	}
	c.deps.Metrics.SetState(string(state), AllStates)
	c.deps.Observer.OnStateChange(state)
}
