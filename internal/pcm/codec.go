// Package pcm converts float audio to and from 16-bit little-endian PCM envelopes
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

// Envelope is the wire container pairing base64 PCM with its format tag.
type Envelope struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Buffer holds decoded, de-interleaved samples ready for playback.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Encode clamps samples to [-1, 1], quantizes them to int16 and wraps the
// little-endian bytes in a base64 envelope tagged with the input rate.
// The full byte slice is built before anything is returned.
func Encode(samples []float32) Envelope {
	if len(samples) == 0 {
		return Envelope{MimeType: InputMimeType}
	}

	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(quantize(s)))
	}

	return Envelope{
		Data:     base64.StdEncoding.EncodeToString(buf),
		MimeType: InputMimeType,
	}
}

func quantize(s float32) int16 {
	v := math.Max(-1, math.Min(1, float64(s)))
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return int16(math.Round(v * negativeScale))
	}
	return int16(math.Round(v * positiveScale))
}

// Decode base64-decodes data and converts it to a float buffer.
func Decode(data string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "invalid base64 audio payload")
	}
	return DecodeBytes(raw, sampleRate, channels)
}

// DecodeBytes reinterprets raw little-endian int16 PCM as an interleaved
// multi-channel float buffer.
func DecodeBytes(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, apperrors.Decode("invalid channel count %d", channels)
	}
	if sampleRate <= 0 {
		return nil, apperrors.Decode("invalid sample rate %d", sampleRate)
	}
	frameBytes := BytesPerSample * channels
	if len(raw)%frameBytes != 0 {
		return nil, apperrors.Decode("payload of %d bytes is not a multiple of %d", len(raw), frameBytes)
	}

	frames := len(raw) / frameBytes
	out := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range out.Channels {
		out.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * BytesPerSample
			v := int16(binary.LittleEndian.Uint16(raw[off:]))
			out.Channels[ch][i] = float32(v) / negativeScale
		}
	}
	return out, nil
}

// Level returns the RMS energy of samples in [0, 1].
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}

// ParseRate extracts the rate parameter of a mime tag such as
// "audio/pcm;rate=24000", falling back to def.
func ParseRate(mimeType string, def int) int {
	for _, param := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			return rate
		}
	}
	return def
}
