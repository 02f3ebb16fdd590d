// Package server exposes the session controller to a local UI over HTTP and WebSocket
package server

import "time"

// Server configuration constants
const (
	// Per-client outbound queue; messages beyond it are dropped for that client
	ClientQueueSize = 64

	// Deadline for one websocket write
	WriteTimeout = 5 * time.Second

	// Largest command a client may send
	MaxCommandBytes = 16 << 10

	// Default command rate per client when none is configured
	DefaultRateLimit = 5
	DefaultRateBurst = 10

	// gRPC health service name reflecting the session state
	HealthService = "parley.Session"
)
