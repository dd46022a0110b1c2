package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

type HandlerFunc func(ctx context.Context, evt domain.Event) error

// InMemoryBus delivers events synchronously to every handler subscribed to
// the event type. All handlers run; their errors are joined.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]HandlerFunc
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[domain.EventType][]HandlerFunc),
	}
}

func (b *InMemoryBus) Subscribe(eventType domain.EventType, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers handler for every known event type.
func (b *InMemoryBus) SubscribeAll(handler HandlerFunc) {
	for _, t := range []domain.EventType{domain.EventPaymentInfo, domain.EventPaymentError, domain.EventPaymentPluginError} {
		b.Subscribe(t, handler)
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, evt domain.Event) error {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event it sees. Handy in tests and for debugging.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Handle(ctx context.Context, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// OfType filters the recorded events.
func (r *Recorder) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
