package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/persona"
	"github.com/GriffinCanCode/parley/internal/session"
	"github.com/GriffinCanCode/parley/internal/trace"
	"github.com/GriffinCanCode/parley/internal/transcript"
)

// Controller is the part of the session controller the UI drives.
type Controller interface {
	Connect(cfg persona.ConnectConfig)
	Disconnect()
	SetMute(muted bool)
	Status() session.Status
	Transcript() []transcript.Item
}

// Options configures a Server. Zero values get defaults.
type Options struct {
	Catalog   *persona.Catalog
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer // serves /metrics when set
	RateLimit float64             // commands per second per client
	RateBurst int
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl     Controller
	hub      *Hub
	catalog  *persona.Catalog
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limit    rate.Limit
	burst    int
}

// New creates a server. hub must be registered as an observer of ctrl for
// clients to receive notifications.
func New(ctrl Controller, hub *Hub, opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = persona.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}
	return &Server{
		ctrl:     ctrl,
		hub:      hub,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		limit:    rate.Limit(opts.RateLimit),
		burst:    opts.RateBurst,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(MaxCommandBytes)

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	c := newClient(conn, s.limit, s.burst)
	c.enqueue(s.statusMessage())
	s.hub.add(c)
	defer s.hub.remove(c)
	go c.writeLoop(ctx)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.Allow() {
			s.metrics.WSThrottled.Inc()
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.enqueue(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.enqueue(ErrorMessage{Type: "error", Message: "malformed command"})
			continue
		}

		s.handleCommand(trace.ForCommand(baseCtx, cmd.TraceID), c, cmd)
	}
}

func (s *Server) handleCommand(ctx context.Context, c *client, cmd Command) {
	ctx, span := trace.StartSpan(ctx, "ws."+cmd.Type)
	defer span.Finish(ctx, nil)
	log := trace.Logger(ctx)

	label := cmd.Type
	switch cmd.Type {
	case "connect":
		var cfg persona.ConnectConfig
		if cmd.Config != nil {
			cfg = *cmd.Config
		}
		log.Info("connect requested", "language", cfg.LanguageCode, "voice", cfg.Voice)
		s.ctrl.Connect(cfg)
	case "disconnect":
		log.Info("disconnect requested")
		s.ctrl.Disconnect()
	case "mute":
		span.SetAttr("muted", cmd.Muted)
		s.ctrl.SetMute(cmd.Muted)
	case "status":
		c.enqueue(s.statusMessage())
	default:
		label = "unknown"
		c.enqueue(ErrorMessage{Type: "error", Message: "unknown command: " + cmd.Type})
	}
	s.metrics.WSCommands.WithLabelValues(label).Inc()
}

func (s *Server) statusMessage() StatusMessage {
	st := s.ctrl.Status()
	return StatusMessage{
		Type:      "status",
		State:     string(st.State),
		Error:     st.Error,
		SessionID: st.SessionID,
		Muted:     st.Muted,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusMessage())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transcript.Cleaned(s.ctrl.Transcript()))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, s.statusMessage())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
