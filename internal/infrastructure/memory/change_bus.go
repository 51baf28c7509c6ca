package memory

import (
	"context"
	"sync"

	"bidding-core/internal/domain"
)

// ChangeBus delivers change events to in-process subscribers. Publish calls
// every handler before returning, so a publisher that serializes its own
// Publish calls per auction gets per-topic order for free.
type ChangeBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]domain.ChangeHandler
}

func NewChangeBus() *ChangeBus {
	return &ChangeBus{handlers: make(map[int]domain.ChangeHandler)}
}

func (b *ChangeBus) Publish(ctx context.Context, event *domain.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]domain.ChangeHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		// Handler errors belong to the subscriber, same as on the redis bus.
		_ = h(event)
	}
	return nil
}

// SubscribeToChanges registers handler and blocks until ctx is done.
func (b *ChangeBus) SubscribeToChanges(ctx context.Context, handler domain.ChangeHandler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()

	<-ctx.Done()
	return ctx.Err()
}

// Subscribers reports how many handlers are registered.
func (b *ChangeBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
