// Package audio handles microphone capture and speaker output over portaudio
package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/parley/internal/errors"
)

// Init must be called once before any device is used.
func Init() error { return portaudio.Initialize() }

// Terminate releases the audio host. Call once on shutdown.
func Terminate() error { return portaudio.Terminate() }

// MicConfig configures the microphone.
type MicConfig struct {
	SampleRate      int
	FramesPerBuffer int
	BufferSize      int      // blocks held before new ones are dropped
	Device          string   // substring of the preferred device name
	Excluded        []string // substrings of devices never used
	OnDrop          func()
}

// Microphone resolves an input device and opens capture streams on it.
type Microphone struct {
	cfg    MicConfig
	mu     sync.Mutex
	device *portaudio.DeviceInfo
}

// NewMicrophone creates a microphone. No device is touched until
// RequestPermission.
func NewMicrophone(cfg MicConfig) *Microphone {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32
	}
	return &Microphone{cfg: cfg}
}

// RequestPermission picks the input device. It fails with a permission error
// when no usable microphone is reachable.
func (m *Microphone) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return apperrors.Permission(err)
	}

	var best *portaudio.DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 || isExcluded(dev.Name, m.cfg.Excluded) {
			continue
		}
		if m.cfg.Device != "" {
			if containsIgnoreCase(dev.Name, m.cfg.Device) {
				best = dev
				break
			}
			continue
		}
		// Loopback devices carry system audio, not the speaker's voice.
		if classifyDevice(dev.Name) == sourceSystem {
			continue
		}
		if best == nil || preferDevice(dev.Name, best.Name) {
			best = dev
		}
	}

	if best == nil && m.cfg.Device == "" {
		if def, err := portaudio.DefaultInputDevice(); err == nil && def.MaxInputChannels > 0 {
			best = def
		}
	}
	if best == nil {
		return apperrors.Permission(nil).WithMetadata("device", m.cfg.Device)
	}

	m.mu.Lock()
	m.device = best
	m.mu.Unlock()
	slog.Info("microphone selected", "device", best.Name)
	return nil
}

// Open starts a mono capture stream on the selected device. Blocks are
// delivered on Capture.Blocks until Close.
func (m *Microphone) Open(ctx context.Context) (*Capture, error) {
	m.mu.Lock()
	dev := m.device
	m.mu.Unlock()
	if dev == nil {
		return nil, apperrors.Permission(nil)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(m.cfg.SampleRate),
		FramesPerBuffer: m.cfg.FramesPerBuffer,
	}

	buf := make([]float32, m.cfg.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, apperrors.Permission(err).WithMetadata("device", dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, apperrors.Permission(err).WithMetadata("device", dev.Name)
	}

	capCtx, cancel := context.WithCancel(ctx)
	c := &Capture{
		stream: stream,
		out:    make(chan []float32, m.cfg.BufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
		onDrop: m.cfg.OnDrop,
		device: dev.Name,
	}
	go c.readLoop(capCtx, buf)
	return c, nil
}

// Capture is one open microphone stream.
type Capture struct {
	stream   *portaudio.Stream
	out      chan []float32
	muted    atomic.Bool
	dropped  atomic.Uint64
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	onDrop   func()
	device   string
}

// Blocks returns the captured blocks in production order. The channel is
// closed once capture stops.
func (c *Capture) Blocks() <-chan []float32 { return c.out }

// SetMuted keeps the stream running but replaces its content with silence.
func (c *Capture) SetMuted(muted bool) { c.muted.Store(muted) }

// Dropped returns how many blocks were discarded because the consumer lagged.
func (c *Capture) Dropped() uint64 { return c.dropped.Load() }

func (c *Capture) readLoop(ctx context.Context, buf []float32) {
	defer close(c.done)
	defer close(c.out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			if ctx.Err() == nil {
				slog.Debug("audio read error", "device", c.device, "error", err)
			}
			return
		}

		block := make([]float32, len(buf))
		if !c.muted.Load() {
			copy(block, buf)
		}

		select {
		case c.out <- block:
		default:
			c.dropped.Add(1)
			if c.onDrop != nil {
				c.onDrop()
			}
			slog.Debug("audio buffer full, dropping block", "device", c.device)
		}
	}
}

// Close stops the stream and waits for the read loop. Safe to call repeatedly.
func (c *Capture) Close() error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		_ = c.stream.Stop()
		<-c.done
		err = c.stream.Close()
		slog.Debug("capture closed", "device", c.device, "dropped", c.Dropped())
	})
	return err
}

const (
	sourceUser   = "user"
	sourceSystem = "system"
)

func classifyDevice(name string) string {
	systemKeywords := []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}
	for _, kw := range systemKeywords {
		if containsIgnoreCase(name, kw) {
			return sourceSystem
		}
	}

	micKeywords := []string{"microphone", "input", "mic", "built-in", "headset"}
	for _, kw := range micKeywords {
		if containsIgnoreCase(name, kw) {
			return sourceUser
		}
	}

	return ""
}

func isExcluded(name string, excluded []string) bool {
	for _, ex := range excluded {
		if ex != "" && containsIgnoreCase(name, ex) {
			return true
		}
	}
	return false
}

// preferDevice reports whether name beats current. Named microphones beat
// unclassified inputs, and built-in ones beat external ones.
func preferDevice(name, current string) bool {
	if classifyDevice(name) == sourceUser && classifyDevice(current) != sourceUser {
		return true
	}
	for _, p := range []string{"macbook", "built-in"} {
		if containsIgnoreCase(name, p) && !containsIgnoreCase(current, p) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
