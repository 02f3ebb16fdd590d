package live

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/pcm"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024
	DefaultCloseGracePeriod = 2 * time.Second
	DefaultEventBuffer      = 64
)

// DialerConfig configures how sessions are opened.
type DialerConfig struct {
	URL              string
	DialTimeout      time.Duration
	WriteWait        time.Duration
	MaxMessageSize   int64
	CloseGracePeriod time.Duration
	EventBuffer      int
}

func (c *DialerConfig) defaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// Dialer opens Live sessions.
type Dialer struct {
	cfg DialerConfig
}

// NewDialer creates a dialer.
func NewDialer(cfg DialerConfig) *Dialer {
	cfg.defaults()
	return &Dialer{cfg: cfg}
}

// Dial connects with an ephemeral credential and sends the setup frame. The
// session is usable once a SetupComplete event arrives.
func (d *Dialer) Dial(ctx context.Context, credential string, setup Setup) (*Conn, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid live url")
	}
	q := u.Query()
	q.Set("access_token", credential)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}
	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		appErr := apperrors.Connection(err, "dial live endpoint")
		if resp != nil {
			appErr.WithMetadata("status", resp.Status)
		}
		return nil, appErr
	}
	ws.SetReadLimit(d.cfg.MaxMessageSize)

	c := &Conn{
		ws:      ws,
		cfg:     d.cfg,
		events:  make(chan Event, d.cfg.EventBuffer),
		closeCh: make(chan struct{}),
	}
	if err := c.writeJSON(setup.frame()); err != nil {
		_ = ws.Close()
		return nil, apperrors.Connection(err, "send setup")
	}
	go c.readLoop()
	return c, nil
}

// Conn is one open Live session.
type Conn struct {
	ws  *websocket.Conn
	cfg DialerConfig

	events  chan Event
	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	err     error
}

// Events delivers decoded inbound events in arrival order. The channel is
// closed when the connection ends; Err then tells why.
func (c *Conn) Events() <-chan Event { return c.events }

// Err returns the reason the connection ended, or nil if it is still open or
// was closed locally.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one audio envelope as realtime input.
func (c *Conn) Send(ctx context.Context, env pcm.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return apperrors.Connection(nil, "connection closed")
	}
	if err := c.writeJSON(audioFrame(env)); err != nil {
		return apperrors.Connection(err, "send audio")
	}
	return nil
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		events, err := Decode(data)
		if err != nil {
			slog.Warn("dropping undecodable live frame", "error", err, "bytes", len(data))
			continue
		}
		for _, ev := range events {
			select {
			case c.events <- ev:
			case <-c.closeCh:
				return
			}
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.err = apperrors.Connection(err, "closed by server")
		return
	}
	c.err = apperrors.Connection(err, "connection lost")
}

// Close sends a close frame and tears the socket down. Safe to call
// repeatedly and after the server already closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
	c.writeMu.Unlock()

	if err := c.ws.Close(); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
