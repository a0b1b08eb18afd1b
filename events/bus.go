// Package events fans collaboration events out to in-process subscribers.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nerfedge/spatialsync/common/types"
)

// Well known collaboration event types. The set is open, applications are
// free to publish their own.
const (
	TypeSelection  = "selection"
	TypeAnnotation = "annotation"
	TypePointer    = "pointer"
)

// Opt for configuring the Bus.
type Opt func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(b *Bus) {
		b.log = logger
	}
}

// Bus fans published events out to subscriber channels. Sends never block,
// a subscriber that stops draining its channel loses events.
type Bus struct {
	// state
	mu     sync.RWMutex
	closed bool
	subs   map[chan types.CollaborationEvent]string

	// options
	log *zap.Logger
}

// NewBus creates an event bus with no subscribers.
func NewBus(opts ...Opt) *Bus {
	b := &Bus{
		subs: make(map[chan types.CollaborationEvent]string),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel receiving every published event. The channel
// stays open until Unsubscribe or Close. Returns nil on a closed bus.
func (b *Bus) Subscribe(bufsize int) chan types.CollaborationEvent {
	return b.subscribe("", bufsize)
}

// SubscribeType returns a channel receiving only events of the given type.
func (b *Bus) SubscribeType(eventType string, bufsize int) chan types.CollaborationEvent {
	return b.subscribe(eventType, bufsize)
}

func (b *Bus) subscribe(filter string, bufsize int) chan types.CollaborationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := make(chan types.CollaborationEvent, bufsize)
	b.subs[sub] = filter
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub chan types.CollaborationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subs[sub]; exists {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish fans the event out to matching subscribers without blocking.
func (b *Bus) Publish(ev types.CollaborationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	publishedEvents.Inc()
	for sub, filter := range b.subs {
		if filter != "" && filter != ev.Type {
			continue
		}
		select {
		case sub <- ev:
		default:
			droppedEvents.Inc()
			b.log.Debug("subscriber is not draining, dropping event", zap.Object("event", &ev))
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
	}
	clear(b.subs)
}
