// Package session runs the voice session state machine: one control loop owns
// the connection, the capture pipeline, playback scheduling and the transcript.
package session

import "time"

// Controller configuration constants
const (
	// DefaultConnectTimeout bounds the time from Connect to setup acknowledgement.
	DefaultConnectTimeout = 15 * time.Second

	// Channel buffer sizes
	CommandBuffer = 16
	StepBuffer    = 8
	InboundBuffer = 64
	LevelBuffer   = 8
)
