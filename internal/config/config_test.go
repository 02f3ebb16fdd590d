package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

var allKeys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "TOKEN_URL", "TOKEN_ADDR", "LOG_LEVEL", "GEMINI_API_KEY",
	"LIVE_URL", "LIVE_MODEL", "INPUT_SAMPLE_RATE", "OUTPUT_SAMPLE_RATE", "FRAMES_PER_BUFFER",
	"CAPTURE_BUFFER", "INPUT_DEVICE", "OUTPUT_DEVICE", "EXCLUDED_AUDIO_DEVICES", "TOKEN_TTL",
	"TOKEN_SESSION_TTL", "CONNECT_TIMEOUT", "WS_RATE_LIMIT", "WS_RATE_BURST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.GRPCAddr != ":50052" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":50052")
	}
	if cfg.TokenURL != "http://localhost:8001/api/token" {
		t.Errorf("TokenURL = %q", cfg.TokenURL)
	}
	if cfg.InputSampleRate != 16000 || cfg.OutputSampleRate != 24000 {
		t.Errorf("rates = %d/%d, want 16000/24000", cfg.InputSampleRate, cfg.OutputSampleRate)
	}
	if cfg.FramesPerBuffer != 512 {
		t.Errorf("FramesPerBuffer = %d, want 512", cfg.FramesPerBuffer)
	}
	if cfg.TokenTTL != 30*time.Minute || cfg.TokenSessionTTL != time.Minute {
		t.Errorf("token ttl = %v/%v, want 30m/1m", cfg.TokenTTL, cfg.TokenSessionTTL)
	}
	if len(cfg.ExcludedAudioDevices) != 2 {
		t.Errorf("ExcludedAudioDevices = %v, want 2 defaults", cfg.ExcludedAudioDevices)
	}
	if cfg.LiveURL != "" {
		t.Errorf("LiveURL = %q, want empty", cfg.LiveURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("FRAMES_PER_BUFFER", "1024")
	t.Setenv("TOKEN_TTL", "10m")
	t.Setenv("CONNECT_TIMEOUT", "3s")
	t.Setenv("WS_RATE_LIMIT", "2.5")
	t.Setenv("EXCLUDED_AUDIO_DEVICES", "zoom, ,airpods")
	t.Setenv("INPUT_DEVICE", "USB")

	cfg := Load()

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.FramesPerBuffer != 1024 {
		t.Errorf("FramesPerBuffer = %d, want 1024", cfg.FramesPerBuffer)
	}
	if cfg.TokenTTL != 10*time.Minute {
		t.Errorf("TokenTTL = %v, want 10m", cfg.TokenTTL)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}
	if cfg.WSRateLimit != 2.5 {
		t.Errorf("WSRateLimit = %v, want 2.5", cfg.WSRateLimit)
	}
	if len(cfg.ExcludedAudioDevices) != 2 || cfg.ExcludedAudioDevices[1] != "airpods" {
		t.Errorf("ExcludedAudioDevices = %v, want [zoom airpods]", cfg.ExcludedAudioDevices)
	}
	if cfg.InputDevice != "USB" {
		t.Errorf("InputDevice = %q, want USB", cfg.InputDevice)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRAMES_PER_BUFFER", "lots")
	t.Setenv("TOKEN_TTL", "forever")
	t.Setenv("WS_RATE_LIMIT", "fast")

	cfg := Load()

	if cfg.FramesPerBuffer != 512 {
		t.Errorf("FramesPerBuffer = %d, want default 512", cfg.FramesPerBuffer)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Errorf("TokenTTL = %v, want default", cfg.TokenTTL)
	}
	if cfg.WSRateLimit != 5 {
		t.Errorf("WSRateLimit = %v, want default 5", cfg.WSRateLimit)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_ADDR=:7000\nLIVE_MODEL=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("HTTP_ADDR", ":6000")

	cfg := Load()

	if cfg.HTTPAddr != ":6000" {
		t.Errorf("HTTPAddr = %q, want environment value :6000", cfg.HTTPAddr)
	}
	if cfg.LiveModel != "from-file" {
		t.Errorf("LiveModel = %q, want from-file", cfg.LiveModel)
	}
	os.Unsetenv("LIVE_MODEL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"input rate", func(c *Config) { c.InputSampleRate = 48000 }},
		{"output rate", func(c *Config) { c.OutputSampleRate = 0 }},
		{"frames", func(c *Config) { c.FramesPerBuffer = 0 }},
		{"capture buffer", func(c *Config) { c.CaptureBuffer = -1 }},
		{"token url", func(c *Config) { c.TokenURL = "" }},
		{"timeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"rate", func(c *Config) { c.WSRateBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
				t.Errorf("Validate() = %v, want CONFIG_INVALID", err)
			}
		})
	}
}

func TestValidateIssuer(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if err := cfg.ValidateIssuer(); err == nil {
		t.Error("missing API key should fail")
	}

	cfg.GeminiAPIKey = "k"
	if err := cfg.ValidateIssuer(); err != nil {
		t.Errorf("ValidateIssuer() = %v, want nil", err)
	}

	cfg.TokenSessionTTL = time.Hour
	if err := cfg.ValidateIssuer(); err == nil {
		t.Error("session window longer than token lifetime should fail")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"bogus": slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (&Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
