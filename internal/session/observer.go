package session

import "github.com/GriffinCanCode/parley/internal/transcript"

// State is the connection state visible to the UI.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateError        State = "ERROR"
)

// AllStates lists every state, in lifecycle order.
var AllStates = []string{
	string(StateDisconnected),
	string(StateConnecting),
	string(StateConnected),
	string(StateError),
}

// Direction tells which way an audio level was measured.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State     State  `json:"state"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Muted     bool   `json:"muted"`
}

// Observer receives controller notifications. All methods are called from the
// control loop, one at a time; implementations must not block.
type Observer interface {
	OnStateChange(state State)
	OnTranscript(item transcript.Item)
	OnError(message string)
	OnAudioLevel(level float64, dir Direction)
}

// Observers fans every notification out to each member in order.
type Observers []Observer

func (o Observers) OnStateChange(state State) {
	for _, obs := range o {
		obs.OnStateChange(state)
	}
}

func (o Observers) OnTranscript(item transcript.Item) {
	for _, obs := range o {
		obs.OnTranscript(item)
	}
}

func (o Observers) OnError(message string) {
	for _, obs := range o {
		obs.OnError(message)
	}
}

func (o Observers) OnAudioLevel(level float64, dir Direction) {
	for _, obs := range o {
		obs.OnAudioLevel(level, dir)
	}
}
