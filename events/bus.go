package events

import (
	"context"
	"sync"

	"github.com/goliatone/go-magiclink/pkg/types"
)

// Observer receives lifecycle events.
type Observer func(ctx context.Context, event types.Event)

type subscription struct {
	observer Observer
	filter   map[types.EventType]bool
}

// Bus is an observer registry handed to the issuer and verifier. Observers
// run synchronously in registration order on the publishing goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

var _ types.EventPublisher = (*Bus)(nil)

// Subscribe registers observer for the listed event types, or for every type
// when none are given. Nil observers are ignored.
func (b *Bus) Subscribe(observer Observer, eventTypes ...types.EventType) {
	if observer == nil {
		return
	}
	sub := subscription{observer: observer}
	if len(eventTypes) > 0 {
		sub.filter = make(map[types.EventType]bool, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = true
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish implements types.EventPublisher.
func (b *Bus) Publish(ctx context.Context, event types.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, sub := range subs {
		if sub.filter != nil && !sub.filter[event.Type] {
			continue
		}
		sub.observer(ctx, event)
	}
}
