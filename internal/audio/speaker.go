package audio

import (
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
	"github.com/GriffinCanCode/parley/internal/pcm"
	"github.com/GriffinCanCode/parley/internal/playback"
)

// SpeakerConfig configures audio output.
type SpeakerConfig struct {
	SampleRate      int
	FramesPerBuffer int
	Device          string
}

// Speaker opens output streams on the configured or default device.
type Speaker struct {
	cfg SpeakerConfig
}

// NewSpeaker creates a speaker.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	return &Speaker{cfg: cfg}
}

// Open starts a mono output stream. The returned Output is the timeline the
// playback scheduler places buffers on.
func (s *Speaker) Open() (*Output, error) {
	dev, err := s.device()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "no output device")
	}

	o := newOutput(s.cfg.SampleRate)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.FramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, o.render)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "open output stream").WithMetadata("device", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "start output stream").WithMetadata("device", dev.Name)
	}
	o.stream = stream
	slog.Info("speaker opened", "device", dev.Name, "sample_rate", s.cfg.SampleRate)
	return o, nil
}

func (s *Speaker) device() (*portaudio.DeviceInfo, error) {
	if s.cfg.Device != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, err
		}
		for _, dev := range devices {
			if dev.MaxOutputChannels > 0 && containsIgnoreCase(dev.Name, s.cfg.Device) {
				return dev, nil
			}
		}
		slog.Warn("output device not found, using default", "device", s.cfg.Device)
	}
	return portaudio.DefaultOutputDevice()
}

// Output mixes scheduled buffers into a running stream. Its clock is the
// number of frames handed to the device, so scheduling is sample accurate.
type Output struct {
	rate   float64
	stream *portaudio.Stream

	mu     sync.Mutex
	clock  int64
	voices []*voice

	closeOnce sync.Once
}

type voice struct {
	out     *Output
	start   int64
	samples []float32
	stopped bool
	onEnded func()
}

func newOutput(sampleRate int) *Output {
	return &Output{rate: float64(sampleRate)}
}

// Now returns the output clock in seconds.
func (o *Output) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.clock) / o.rate
}

// Play schedules buf to start at the given clock time. A start time already
// in the past plays immediately.
func (o *Output) Play(buf *pcm.Buffer, at float64, onEnded func()) playback.Voice {
	samples := downmix(buf)
	if buf != nil && buf.SampleRate > 0 && float64(buf.SampleRate) != o.rate {
		samples = resample(samples, float64(buf.SampleRate), o.rate)
	}

	v := &voice{out: o, samples: samples, onEnded: onEnded}
	o.mu.Lock()
	v.start = max(int64(math.Round(at*o.rate)), o.clock)
	o.voices = append(o.voices, v)
	o.mu.Unlock()
	return v
}

// Stop silences the voice. Calling it after the voice ended is a no-op.
func (v *voice) Stop() {
	v.out.mu.Lock()
	v.stopped = true
	v.out.mu.Unlock()
}

// render is the device callback.
func (o *Output) render(out []float32) {
	clear(out)
	var ended []func()

	o.mu.Lock()
	from, to := o.clock, o.clock+int64(len(out))
	kept := o.voices[:0]
	for _, v := range o.voices {
		if v.stopped {
			continue
		}
		end := v.start + int64(len(v.samples))
		if v.start < to && end > from {
			lo, hi := max(v.start, from), min(end, to)
			for f := lo; f < hi; f++ {
				out[f-from] += v.samples[f-v.start]
			}
		}
		if end <= to {
			v.stopped = true
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(o.voices[len(kept):])
	o.voices = kept
	o.clock = to
	o.mu.Unlock()

	for i := range out {
		out[i] = max(-1, min(1, out[i]))
	}
	for _, fn := range ended {
		fn()
	}
}

// Close stops the stream and drops every pending voice.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.mu.Lock()
		for _, v := range o.voices {
			v.stopped = true
		}
		o.voices = nil
		o.mu.Unlock()
		if o.stream != nil {
			_ = o.stream.Stop()
			err = o.stream.Close()
		}
	})
	return err
}

func downmix(buf *pcm.Buffer) []float32 {
	if buf == nil || len(buf.Channels) == 0 {
		return nil
	}
	if len(buf.Channels) == 1 {
		return buf.Channels[0]
	}
	out := make([]float32, buf.Frames())
	scale := 1 / float32(len(buf.Channels))
	for _, ch := range buf.Channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// resample converts between rates by linear interpolation.
func resample(in []float32, from, to float64) []float32 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return in
	}
	n := int(math.Round(float64(len(in)) * to / from))
	out := make([]float32, n)
	ratio := from / to
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
