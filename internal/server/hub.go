package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/session"
	"github.com/GriffinCanCode/parley/internal/transcript"
)

// client is one connected UI. Messages are written by a single goroutine so a
// client sees them in broadcast order.
type client struct {
	conn    *websocket.Conn
	send    chan any
	limiter *rate.Limiter
}

func newClient(conn *websocket.Conn, limit rate.Limit, burst int) *client {
	return &client{
		conn:    conn,
		send:    make(chan any, ClientQueueSize),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// enqueue never blocks; a client too slow to drain its queue misses messages.
func (c *client) enqueue(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// Hub fans session notifications out to every connected client. It is the
// session.Observer for the control surface.
type Hub struct {
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ session.Observer = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Hub{metrics: m, clients: make(map[*client]struct{})}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WSClients.Set(float64(n))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WSClients.Set(float64(n))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.enqueue(msg) {
			slog.Debug("client queue full, message dropped")
		}
	}
}

func (h *Hub) OnStateChange(state session.State) {
	h.broadcast(StateMessage{Type: "state", State: string(state)})
}

func (h *Hub) OnTranscript(item transcript.Item) {
	h.broadcast(TranscriptMessage{
		Type:      "transcript",
		ID:        item.ID,
		Sender:    string(item.Sender),
		Text:      transcript.Clean(item.Text),
		IsPartial: item.Partial,
	})
}

func (h *Hub) OnError(message string) {
	h.broadcast(ErrorMessage{Type: "error", Message: message})
}

func (h *Hub) OnAudioLevel(level float64, dir session.Direction) {
	h.broadcast(LevelMessage{Type: "level", Level: level, Direction: string(dir)})
}
