// Package playback schedules decoded model audio back-to-back on an output timeline
package playback

import (
	"sync"

	"github.com/GriffinCanCode/parley/internal/pcm"
)

// Voice is a handle to one scheduled buffer. Stop must be safe to call more
// than once and after the buffer finished on its own.
type Voice interface {
	Stop()
}

// Timeline is an output clock that can start buffers at absolute times.
// onEnded fires once when the buffer plays out naturally; it is not called
// after Stop, and never from inside Play or while the timeline holds its own
// locks.
type Timeline interface {
	Now() float64
	Play(buf *pcm.Buffer, at float64, onEnded func()) Voice
}

// Scheduler places buffers gaplessly on a Timeline and tracks the live set so
// an interruption can silence everything at once.
type Scheduler struct {
	timeline Timeline

	mu     sync.Mutex
	next   float64
	live   map[uint64]Voice
	nextID uint64
}

// NewScheduler creates a scheduler whose first buffer starts immediately.
func NewScheduler(timeline Timeline) *Scheduler {
	return &Scheduler{
		timeline: timeline,
		next:     timeline.Now(),
		live:     make(map[uint64]Voice),
	}
}

// Enqueue schedules buf at the end of the queue, or now if the queue already
// drained. It returns the start time.
func (s *Scheduler) Enqueue(buf *pcm.Buffer) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now := s.timeline.Now(); s.next < now {
		s.next = now
	}
	at := s.next
	s.next += buf.Duration()

	id := s.nextID
	s.nextID++
	// onEnded runs on the audio thread and blocks on mu until the voice is
	// registered below, so an early finish still removes it.
	s.live[id] = s.timeline.Play(buf, at, func() { s.ended(id) })
	return at
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// Interrupt stops every live buffer, empties the live set and rewinds the
// queue to now. Repeated calls are harmless.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	voices := make([]Voice, 0, len(s.live))
	for _, v := range s.live {
		voices = append(voices, v)
	}
	clear(s.live)
	s.next = s.timeline.Now()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Live returns the number of buffers scheduled or playing.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// NextStart returns the time the next enqueued buffer would start, ignoring
// any drift of the clock since the last call.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
