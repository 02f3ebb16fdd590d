// Package transcript reconciles streamed per-speaker text deltas into an ordered log
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who spoke an utterance.
type Sender string

const (
	User  Sender = "user"
	Model Sender = "model"
)

// Item is one utterance in the transcript.
type Item struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Partial   bool      `json:"isPartial"`
	Timestamp time.Time `json:"timestamp"`
}

// Reconciler keeps the running accumulator of each speaker and the index of
// that speaker's open item. Writes come from a single control loop; reads may
// come from anywhere.
type Reconciler struct {
	mu    sync.RWMutex
	items []Item
	acc   map[Sender]string
	open  map[Sender]int
	newID func() string
	now   func() time.Time
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		acc:   make(map[Sender]string),
		open:  make(map[Sender]int),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Partial appends delta to the sender's accumulator and upserts the sender's
// open item. It reports false when nothing visible changed, which happens while
// the accumulator is still empty.
func (r *Reconciler) Partial(sender Sender, delta string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.acc[sender] + delta
	r.acc[sender] = text
	if text == "" {
		return Item{}, false
	}

	if idx, ok := r.open[sender]; ok {
		r.items[idx].Text = text
		return r.items[idx], true
	}

	item := Item{
		ID:        r.newID(),
		Sender:    sender,
		Text:      text,
		Partial:   true,
		Timestamp: r.now(),
	}
	r.items = append(r.items, item)
	r.open[sender] = len(r.items) - 1
	return item, true
}

// Complete finalizes every open item and resets the accumulators. Finalized
// items are returned in transcript order.
func (r *Reconciler) Complete() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	var done []Item
	for idx := range r.items {
		item := &r.items[idx]
		if open, ok := r.open[item.Sender]; !item.Partial || !ok || open != idx {
			continue
		}
		item.Partial = false
		done = append(done, *item)
	}
	clear(r.open)
	clear(r.acc)
	return done
}

// Items returns a copy of the transcript.
func (r *Reconciler) Items() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Item, len(r.items))
	copy(result, r.items)
	return result
}

// Open returns the sender's open item, if any.
func (r *Reconciler) Open(sender Sender) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.open[sender]
	if !ok {
		return Item{}, false
	}
	return r.items[idx], true
}

// Reset drops the whole transcript. Used when a new session starts.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	clear(r.open)
	clear(r.acc)
}
