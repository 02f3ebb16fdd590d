package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/parley/internal/session"
	"github.com/GriffinCanCode/parley/internal/trace"
	"github.com/GriffinCanCode/parley/internal/transcript"
)

// Health reports the process as serving and HealthService as serving only
// while a session is connected, so supervisors can watch the voice link.
type Health struct {
	srv *health.Server
}

var _ session.Observer = (*Health)(nil)

// NewHealth creates a health service with no live session.
func NewHealth() *Health {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Health{srv: srv}
}

// Shutdown marks every service as not serving.
func (h *Health) Shutdown() { h.srv.Shutdown() }

func (h *Health) OnStateChange(state session.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == session.StateConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(HealthService, status)
}

func (h *Health) OnTranscript(transcript.Item)            {}
func (h *Health) OnError(string)                          {}
func (h *Health) OnAudioLevel(float64, session.Direction) {}

// NewGRPCServer creates a gRPC server exposing h with trace interceptors.
func NewGRPCServer(h *Health) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	return s
}
