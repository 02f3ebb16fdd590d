// Package live speaks the Gemini Live bidirectional audio protocol over websocket
package live

import (
	"encoding/json"
	"strings"

	"github.com/GriffinCanCode/parley/internal/pcm"
)

// DefaultModel is the native-audio model sessions are opened against.
const DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"

// DefaultURL is the constrained endpoint that accepts ephemeral tokens.
const DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContentConstrained"

// Setup is the session configuration sent as the first frame.
type Setup struct {
	Model       string
	Voice       string
	Instruction string
}

type setupFrame struct {
	Setup setupBody `json:"setup"`
}

type setupBody struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type content struct {
	Parts []textPart `json:"parts"`
}

type textPart struct {
	Text string `json:"text"`
}

// frame builds the wire form. Both transcription directions are always on
// and the response modality is always audio.
func (s Setup) frame() setupFrame {
	model := s.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	body := setupBody{
		Model:                    model,
		GenerationConfig:         generationConfig{ResponseModalities: []string{"AUDIO"}},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if s.Voice != "" {
		sc := &speechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = s.Voice
		body.GenerationConfig.SpeechConfig = sc
	}
	if s.Instruction != "" {
		body.SystemInstruction = &content{Parts: []textPart{{Text: s.Instruction}}}
	}
	return setupFrame{Setup: body}
}

type realtimeInputFrame struct {
	RealtimeInput struct {
		Audio pcm.Envelope `json:"audio"`
	} `json:"realtimeInput"`
}

func audioFrame(env pcm.Envelope) realtimeInputFrame {
	var f realtimeInputFrame
	f.RealtimeInput.Audio = env
	return f
}

// Event is one decoded inbound signal. The concrete types are SetupComplete,
// Interrupted, InputTranscript, OutputTranscript, AudioChunk, TurnComplete
// and GoAway.
type Event interface {
	event()
}

type (
	// SetupComplete acknowledges the setup frame; the session is usable.
	SetupComplete struct{}
	// Interrupted means the user barged in and queued model audio is stale.
	Interrupted struct{}
	// InputTranscript is a delta of the user's speech.
	InputTranscript struct{ Text string }
	// OutputTranscript is a delta of the model's speech.
	OutputTranscript struct{ Text string }
	// AudioChunk is one base64 PCM part of the model's turn.
	AudioChunk struct {
		Data       string
		MimeType   string
		SampleRate int
	}
	// TurnComplete closes the current turn for both speakers.
	TurnComplete struct{}
	// GoAway warns that the server will close the connection soon.
	GoAway struct{ TimeLeft string }
)

func (SetupComplete) event()    {}
func (Interrupted) event()      {}
func (InputTranscript) event()  {}
func (OutputTranscript) event() {}
func (AudioChunk) event()       {}
func (TurnComplete) event()     {}
func (GoAway) event()           {}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *struct {
		TimeLeft string `json:"timeLeft,omitempty"`
	} `json:"goAway,omitempty"`
}

type serverContent struct {
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	ModelTurn           *struct {
		Parts []part `json:"parts,omitempty"`
	} `json:"modelTurn,omitempty"`
	TurnComplete bool `json:"turnComplete,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Decode turns one server frame into events in dispatch order: setup
// acknowledgement, interruption, user transcript, model transcript, audio
// parts as listed, turn completion, then goAway. Frames carrying none of these
// yield no events.
func Decode(raw []byte) ([]Event, error) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var events []Event
	if msg.SetupComplete != nil {
		events = append(events, SetupComplete{})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, Interrupted{})
		}
		if sc.InputTranscription != nil {
			events = append(events, InputTranscript{Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil {
			events = append(events, OutputTranscript{Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				if p.InlineData.MimeType != "" && !strings.HasPrefix(p.InlineData.MimeType, "audio/") {
					continue
				}
				events = append(events, AudioChunk{
					Data:       p.InlineData.Data,
					MimeType:   p.InlineData.MimeType,
					SampleRate: pcm.ParseRate(p.InlineData.MimeType, pcm.OutputSampleRate),
				})
			}
		}
		if sc.TurnComplete {
			events = append(events, TurnComplete{})
		}
	}
	if msg.GoAway != nil {
		events = append(events, GoAway{TimeLeft: msg.GoAway.TimeLeft})
	}
	return events, nil
}
