// Voice client - owns the session controller, audio devices and the local control surface
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/parley/internal/audio"
	"github.com/GriffinCanCode/parley/internal/config"
	"github.com/GriffinCanCode/parley/internal/live"
	"github.com/GriffinCanCode/parley/internal/metrics"
	"github.com/GriffinCanCode/parley/internal/persona"
	"github.com/GriffinCanCode/parley/internal/resilience"
	"github.com/GriffinCanCode/parley/internal/server"
	"github.com/GriffinCanCode/parley/internal/session"
	"github.com/GriffinCanCode/parley/internal/token"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("voice client failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := audio.Init(); err != nil {
		return err
	}
	defer func() { _ = audio.Terminate() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	breaker := resilience.New(resilience.TokenConfig()).WithHook(m.BreakerTransition)
	tokens := token.NewClient(cfg.TokenURL, cfg.ConnectTimeout, breaker)

	mic := audio.NewMicrophone(audio.MicConfig{
		SampleRate:      cfg.InputSampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		BufferSize:      cfg.CaptureBuffer,
		Device:          cfg.InputDevice,
		Excluded:        cfg.ExcludedAudioDevices,
		OnDrop:          m.BlocksDropped.Inc,
	})
	out := audio.NewSpeaker(audio.SpeakerConfig{
		SampleRate:      cfg.OutputSampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		Device:          cfg.OutputDevice,
	})
	remote := live.NewDialer(live.DialerConfig{URL: cfg.LiveURL})

	catalog := persona.Default()
	hub := server.NewHub(m)
	health := server.NewHealth()

	ctrl := session.New(session.Deps{
		Tokens:         tokens,
		Mic:            microphone{mic},
		Speaker:        speaker{out},
		Dialer:         dialer{remote},
		Catalog:        catalog,
		Observer:       session.Observers{hub, health},
		Metrics:        m,
		Model:          cfg.LiveModel,
		ConnectTimeout: cfg.ConnectTimeout,
		OutputRate:     cfg.OutputSampleRate,
	})

	srv := server.New(ctrl, hub, server.Options{
		Catalog:   catalog,
		Metrics:   m,
		Gatherer:  reg,
		RateLimit: cfg.WSRateLimit,
		RateBurst: cfg.WSRateBurst,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := server.NewGRPCServer(health)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })

	g.Go(func() error {
		slog.Info("control surface starting", "http", cfg.HTTPAddr, "token_url", cfg.TokenURL)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		slog.Info("health service starting", "grpc", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	// Wait for shutdown signal or a failed component
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	err := g.Wait()
	slog.Info("shutdown complete")
	return err
}
