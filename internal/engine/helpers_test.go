package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dusk-indust/briefing/internal/collab"
)

// fakeClient implements collab.Client with configurable functions. Nil
// functions fall back to simple successful defaults.
type fakeClient struct {
	discover   func(ctx context.Context, query string) (*collab.DiscoveryResult, error)
	analyze    func(ctx context.Context, e collab.Entity) (json.RawMessage, error)
	synthesize func(ctx context.Context, b *collab.Bundle) (json.RawMessage, error)

	discoverCalls   atomic.Int32
	analyzeCalls    atomic.Int32
	synthesizeCalls atomic.Int32
}

func (f *fakeClient) Discover(ctx context.Context, query string) (*collab.DiscoveryResult, error) {
	f.discoverCalls.Add(1)
	if f.discover != nil {
		return f.discover(ctx, query)
	}
	return &collab.DiscoveryResult{Entities: collab.NewEntities([]string{query})}, nil
}

func (f *fakeClient) Analyze(ctx context.Context, e collab.Entity) (json.RawMessage, error) {
	f.analyzeCalls.Add(1)
	if f.analyze != nil {
		return f.analyze(ctx, e)
	}
	return analysisFor(e.Name), nil
}

func (f *fakeClient) Synthesize(ctx context.Context, b *collab.Bundle) (json.RawMessage, error) {
	f.synthesizeCalls.Add(1)
	if f.synthesize != nil {
		return f.synthesize(ctx, b)
	}
	return json.RawMessage(fmt.Sprintf(`{"entries":%d}`, len(b.Entries))), nil
}

// discoverNames returns a discover function that always finds names.
func discoverNames(names ...string) func(context.Context, string) (*collab.DiscoveryResult, error) {
	return func(context.Context, string) (*collab.DiscoveryResult, error) {
		return &collab.DiscoveryResult{Entities: collab.NewEntities(names)}, nil
	}
}

func analysisFor(name string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"name":%q}`, name))
}

// remoteErr builds the error a collaborator returns for {"error": msg}.
func remoteErr(op, msg string) error {
	return &collab.RemoteError{Op: op, StatusCode: 500, Message: msg}
}

// eventLog collects status events from a subscription until it is closed.
type eventLog struct {
	mu     sync.Mutex
	events []StatusEvent
	done   chan struct{}
}

func collectEvents(ch <-chan StatusEvent) *eventLog {
	l := &eventLog{done: make(chan struct{})}
	go func() {
		defer close(l.done)
		for ev := range ch {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		}
	}()
	return l
}

// wait blocks until the subscription is closed and returns what was seen.
func (l *eventLog) wait() []StatusEvent {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StatusEvent(nil), l.events...)
}
