package events

import (
	"context"
	"sync"

	"github.com/jordanlanch/territoryengine/pkg/logger"
)

// Handler processes a domain event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt DomainEvent) error {
	return f(ctx, evt)
}

// Bus is an in-process event bus. Events go to a buffered channel and are
// dispatched to subscribers in order by a single consumer goroutine.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan DomainEvent
	done        chan struct{}
	closeOnce   sync.Once
	logger      logger.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewBus creates a Bus with the given channel buffer size.
func NewBus(bufSize int, log logger.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		events: make(chan DomainEvent, bufSize),
		done:   make(chan struct{}),
		logger: log.With("component", "event_bus"),
	}
}

// Subscribe registers a named handler. Must be called before Start.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus without blocking. When the buffer is
// full the event is dropped and a warning is logged.
func (b *Bus) Publish(ctx context.Context, evt DomainEvent) {
	select {
	case b.events <- evt:
	default:
		b.logger.Warn("Event buffer full, dropping event", "event_type", evt.Type, "event_id", evt.ID)
	}
}

// Start runs the consumer goroutine until the context is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				b.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// Stop closes the bus and waits for queued events to be dispatched.
// Publishing after Stop panics.
func (b *Bus) Stop() {
	b.closeOnce.Do(func() { close(b.events) })
	<-b.done
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, evt DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.logger.Error("Event handler failed", "handler", s.name, "event_type", evt.Type, "error", err)
		}
	}
}
