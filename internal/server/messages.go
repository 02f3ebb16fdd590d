package server

import "github.com/GriffinCanCode/parley/internal/persona"

// Message carries only the type, for routing.
type Message struct {
	Type string `json:"type"`
}

// Command is what a client sends. Config is read for "connect", Muted for "mute".
type Command struct {
	Type    string                 `json:"type"`
	Config  *persona.ConnectConfig `json:"config,omitempty"`
	Muted   bool                   `json:"muted,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

type StatusMessage struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Muted     bool   `json:"muted"`
}

type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type TranscriptMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	IsPartial bool   `json:"isPartial"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type LevelMessage struct {
	Type      string  `json:"type"`
	Level     float64 `json:"level"`
	Direction string  `json:"direction"`
}
