// Package config handles voice client and credential endpoint configuration
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

type Config struct {
	HTTPAddr  string
	GRPCAddr  string
	TokenURL  string
	TokenAddr string
	LogLevel  string

	GeminiAPIKey string
	LiveURL      string // empty means the public constrained endpoint
	LiveModel    string

	InputSampleRate      int
	OutputSampleRate     int
	FramesPerBuffer      int
	CaptureBuffer        int // blocks queued before capture drops
	InputDevice          string
	OutputDevice         string
	ExcludedAudioDevices []string

	TokenTTL        time.Duration
	TokenSessionTTL time.Duration
	ConnectTimeout  time.Duration

	WSRateLimit float64 // commands per second per client
	WSRateBurst int
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env", "error", err)
	}

	return &Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8000"),
		GRPCAddr:  getEnv("GRPC_ADDR", ":50052"),
		TokenURL:  getEnv("TOKEN_URL", "http://localhost:8001/api/token"),
		TokenAddr: getEnv("TOKEN_ADDR", ":8001"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		LiveURL:      os.Getenv("LIVE_URL"),
		LiveModel:    getEnv("LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),

		InputSampleRate:      getEnvInt("INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate:     getEnvInt("OUTPUT_SAMPLE_RATE", 24000),
		FramesPerBuffer:      getEnvInt("FRAMES_PER_BUFFER", 512),
		CaptureBuffer:        getEnvInt("CAPTURE_BUFFER", 32),
		InputDevice:          os.Getenv("INPUT_DEVICE"),
		OutputDevice:         os.Getenv("OUTPUT_DEVICE"),
		ExcludedAudioDevices: getEnvList("EXCLUDED_AUDIO_DEVICES", []string{"iphone", "teams"}),

		TokenTTL:        getEnvDuration("TOKEN_TTL", 30*time.Minute),
		TokenSessionTTL: getEnvDuration("TOKEN_SESSION_TTL", time.Minute),
		ConnectTimeout:  getEnvDuration("CONNECT_TIMEOUT", 15*time.Second),

		WSRateLimit: getEnvFloat("WS_RATE_LIMIT", 5),
		WSRateBurst: getEnvInt("WS_RATE_BURST", 10),
	}
}

// Validate checks the settings the voice client needs.
func (c *Config) Validate() error {
	switch {
	case c.InputSampleRate != 16000:
		// The Live API only accepts 16 kHz input.
		return apperrors.Newf(apperrors.CodeConfigInvalid, "INPUT_SAMPLE_RATE must be 16000, got %d", c.InputSampleRate)
	case c.OutputSampleRate <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "OUTPUT_SAMPLE_RATE must be positive, got %d", c.OutputSampleRate)
	case c.FramesPerBuffer <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "FRAMES_PER_BUFFER must be positive, got %d", c.FramesPerBuffer)
	case c.CaptureBuffer <= 0:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "CAPTURE_BUFFER must be positive, got %d", c.CaptureBuffer)
	case c.TokenURL == "":
		return apperrors.New(apperrors.CodeConfigInvalid, "TOKEN_URL is required")
	case c.ConnectTimeout <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "CONNECT_TIMEOUT must be positive")
	case c.WSRateLimit <= 0 || c.WSRateBurst <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "WS_RATE_LIMIT and WS_RATE_BURST must be positive")
	}
	return nil
}

// ValidateIssuer checks the settings the credential endpoint needs.
func (c *Config) ValidateIssuer() error {
	switch {
	case c.GeminiAPIKey == "":
		return apperrors.New(apperrors.CodeConfigInvalid, "GEMINI_API_KEY is required")
	case c.TokenTTL <= 0 || c.TokenSessionTTL <= 0:
		return apperrors.New(apperrors.CodeConfigInvalid, "TOKEN_TTL and TOKEN_SESSION_TTL must be positive")
	case c.TokenSessionTTL > c.TokenTTL:
		return apperrors.New(apperrors.CodeConfigInvalid, "TOKEN_SESSION_TTL cannot exceed TOKEN_TTL")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
