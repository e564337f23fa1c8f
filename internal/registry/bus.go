package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// Listener receives registry events. Listeners run synchronously on the
// goroutine that performed the lifecycle operation and must not call back
// into the Registry's mutating methods.
type Listener func(ctx context.Context, event domain.Event)

type subscription struct {
	id   uint64
	kind domain.EventKind // empty for catch-all subscriptions
	fn   Listener
}

// Bus is a typed publish/subscribe channel for registry events.
// Subscriptions are delivered in registration order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// On subscribes fn to events of the given kind and returns its unsubscribe function.
func (b *Bus) On(kind domain.EventKind, fn Listener) (unsubscribe func()) {
	return b.add(kind, fn)
}

// OnAll subscribes fn to every event kind.
func (b *Bus) OnAll(fn Listener) (unsubscribe func()) {
	return b.add("", fn)
}

func (b *Bus) add(kind domain.EventKind, fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers event to matching subscribers. A panicking listener is
// logged and does not stop delivery to the others.
func (b *Bus) Emit(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind == "" || s.kind == event.Kind {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(ctx, s, event)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "registry listener panicked",
				"event", string(event.Kind),
				"plugin_id", event.PluginID,
				"panic", r,
			)
		}
	}()
	s.fn(ctx, event)
}
