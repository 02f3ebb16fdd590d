// Package pcm converts float audio to and from 16-bit little-endian PCM envelopes
package pcm

// Wire format constants
const (
	// InputSampleRate is the microphone rate sent upstream.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of model audio when the mime tag omits one.
	OutputSampleRate = 24000

	// InputMimeType tags every outbound envelope.
	InputMimeType = "audio/pcm;rate=16000"

	// BytesPerSample for signed 16-bit PCM
	BytesPerSample = 2

	// Asymmetric int16 scaling
	negativeScale = 32768.0
	positiveScale = 32767.0
)
