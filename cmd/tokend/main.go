// Credential endpoint - mints single-use Live API tokens so the API key never leaves the server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/parley/internal/config"
	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/resilience"
	"github.com/GriffinCanCode/parley/internal/token"
	"github.com/GriffinCanCode/parley/internal/trace"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.ValidateIssuer(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := token.NewGenAIIssuer(ctx, cfg.GeminiAPIKey, cfg.TokenTTL, cfg.TokenSessionTTL)
	if err != nil {
		slog.Error("failed to create token issuer", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	upstream := resilience.DefaultConfig()
	upstream.Name = "genai"
	breaker := resilience.New(upstream).WithHook(m.BreakerTransition)

	mux := http.NewServeMux()
	mux.Handle("/api/token", token.Handler(issuer, breaker, m))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.TokenAddr,
		Handler:           trace.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		slog.Info("credential endpoint starting", "http", cfg.TokenAddr, "ttl", cfg.TokenTTL, "session_ttl", cfg.TokenSessionTTL)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}
