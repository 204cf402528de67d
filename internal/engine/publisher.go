package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultEventBuffer is the per-subscriber channel capacity.
const DefaultEventBuffer = 64

// Publisher fans status events out to any number of subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the event. Late
// subscribers only see events published after they joined.
type Publisher struct {
	mu      sync.RWMutex
	subs    map[uint64]chan StatusEvent
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher whose subscriber channels hold buffer
// events. buffer <= 0 uses DefaultEventBuffer.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Publisher{
		subs:   make(map[uint64]chan StatusEvent),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// it and closes its channel; it is safe to call more than once. Subscribing
// to a closed publisher returns an already-closed channel.
func (p *Publisher) Subscribe() (<-chan StatusEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan StatusEvent, p.buffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { p.unsubscribe(id) })
	}
}

func (p *Publisher) unsubscribe(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ch, ok := p.subs[id]; ok {
		delete(p.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every current subscriber without blocking.
func (p *Publisher) Publish(ev StatusEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			p.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// FormatEvent formats a StatusEvent as a human-readable status line.
func FormatEvent(ev StatusEvent) string {
	switch ev.State {
	case TaskPending:
		return fmt.Sprintf("  ○ %s (pending)", ev.Name)
	case TaskSuccess:
		return fmt.Sprintf("  ✓ %s complete", ev.Name)
	case TaskError:
		return fmt.Sprintf("  ✗ %s failed: %s", ev.Name, ev.Detail)
	default:
		return fmt.Sprintf("  ? %s (unknown state)", ev.Name)
	}
}
