// Package progress fans out pipeline phase events to observers.
// Delivery is best-effort: a slow observer loses events rather than
// stalling the pipeline.
package progress

import (
	"sync"
	"time"
)

// Event is one observable pipeline transition.
type Event struct {
	Phase   string    `json:"phase"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan Event{}}
}

// Subscribe returns a buffered event channel and a cancel function.
// Cancel closes the channel and drops the subscription.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers to every subscriber without blocking; full buffers
// drop the event for that subscriber.
func (b *Broadcaster) Publish(phase, message string) {
	ev := Event{Phase: phase, Message: message, At: time.Now().UTC()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
