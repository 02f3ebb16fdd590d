package playback

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/parley/internal/pcm"
)

type fakeVoice struct {
	at      float64
	length  float64
	onEnded func()
	stops   int
}

func (v *fakeVoice) Stop() { v.stops++ }

type fakeTimeline struct {
	mu     sync.Mutex
	now    float64
	voices []*fakeVoice
}

func (f *fakeTimeline) Now() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTimeline) Play(buf *pcm.Buffer, at float64, onEnded func()) Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := &fakeVoice{at: at, length: buf.Duration(), onEnded: onEnded}
	f.voices = append(f.voices, v)
	return v
}

func (f *fakeTimeline) advance(d float64) { f.mu.Lock(); f.now += d; f.mu.Unlock() }

func seconds(sec float64) *pcm.Buffer {
	frames := int(sec * pcm.OutputSampleRate)
	return &pcm.Buffer{SampleRate: pcm.OutputSampleRate, Channels: [][]float32{make([]float32, frames)}}
}

func TestEnqueueIsGapless(t *testing.T) {
	tl := &fakeTimeline{now: 10}
	s := NewScheduler(tl)

	durations := []float64{0.5, 0.25, 1, 0.125}
	want := 10.0
	for _, d := range durations {
		at := s.Enqueue(seconds(d))
		assert.InDelta(t, want, at, 1e-9)
		want += d
	}

	require.Len(t, tl.voices, len(durations))
	for i := 1; i < len(tl.voices); i++ {
		prev := tl.voices[i-1]
		assert.InDelta(t, prev.at+prev.length, tl.voices[i].at, 1e-9, "gap before voice %d", i)
	}
	assert.Equal(t, 4, s.Live())
}

func TestEnqueueResetsWhenBehind(t *testing.T) {
	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	s.Enqueue(seconds(0.5))

	tl.advance(3)
	at := s.Enqueue(seconds(0.5))
	assert.InDelta(t, 3.0, at, 1e-9, "drained queue restarts at now")
	assert.InDelta(t, 3.5, s.NextStart(), 1e-9)
}

func TestNaturalEndLeavesLiveSet(t *testing.T) {
	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	s.Enqueue(seconds(0.5))
	s.Enqueue(seconds(0.5))

	tl.voices[0].onEnded()
	assert.Equal(t, 1, s.Live())
	tl.voices[1].onEnded()
	assert.Equal(t, 0, s.Live())
}

func TestInterruptStopsEverythingAndRewinds(t *testing.T) {
	tl := &fakeTimeline{now: 1}
	s := NewScheduler(tl)
	s.Enqueue(seconds(2))
	s.Enqueue(seconds(2))
	require.Equal(t, 2, s.Live())

	tl.advance(0.5)
	s.Interrupt()

	assert.Equal(t, 0, s.Live())
	assert.InDelta(t, 1.5, s.NextStart(), 1e-9)
	for i, v := range tl.voices {
		assert.Equal(t, 1, v.stops, "voice %d", i)
	}

	at := s.Enqueue(seconds(0.1))
	assert.InDelta(t, 1.5, at, 1e-9, "new audio starts now, not after the flushed queue")
}

func TestInterruptIsIdempotent(t *testing.T) {
	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	s.Interrupt()
	s.Enqueue(seconds(1))
	s.Interrupt()
	s.Interrupt()

	assert.Equal(t, 0, s.Live())
	assert.Equal(t, 1, tl.voices[0].stops)
}

func TestConcurrentEndAndInterrupt(t *testing.T) {
	tl := &fakeTimeline{}
	s := NewScheduler(tl)
	for i := 0; i < 50; i++ {
		s.Enqueue(seconds(0.01))
	}

	var wg sync.WaitGroup
	for _, v := range tl.voices {
		wg.Add(1)
		go func(v *fakeVoice) {
			defer wg.Done()
			v.onEnded()
		}(v)
	}
	s.Interrupt()
	wg.Wait()

	assert.Equal(t, 0, s.Live())
}
