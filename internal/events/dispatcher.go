package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("events: bus closed")

// EventHandler handles a delivered event.
type EventHandler func(context.Context, Event) error

// Bus publishes events and delivers them to subscribers. Delivery is
// at-least-once for the durable backends.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	// Run consumes events until ctx is cancelled or the bus is closed.
	Run(ctx context.Context) error
	Close() error
}

// handlerSet is the subscriber registry shared by all backends.
type handlerSet struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{listeners: make(map[EventType][]EventHandler)}
}

func (h *handlerSet) Subscribe(eventType EventType, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[eventType] = append(h.listeners[eventType], handler)
}

// dispatch runs every handler for the event and joins their errors.
func (h *handlerSet) dispatch(ctx context.Context, event Event) error {
	h.mu.RLock()
	handlers := append([]EventHandler{}, h.listeners[event.Type]...)
	h.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func logDispatch(logger *zap.Logger, event Event, err error) {
	if err == nil {
		return
	}
	logger.Error("event handling failed",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("key", event.Key),
		zap.Error(err),
	)
}

// memoryBus delivers through a buffered channel to a fixed worker pool.
// Undelivered events are lost on shutdown.
type memoryBus struct {
	*handlerSet
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	workers   int
	logger    *zap.Logger
}

// NewMemoryBus returns an in-process bus.
func NewMemoryBus(workers, buffer int, logger *zap.Logger) Bus {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &memoryBus{
		handlerSet: newHandlerSet(),
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
		workers:    workers,
		logger:     logger,
	}
}

func (b *memoryBus) Publish(ctx context.Context, event Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}
	select {
	case b.queue <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", event.Type, ctx.Err())
	}
}

func (b *memoryBus) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-b.done:
					return
				case event := <-b.queue:
					logDispatch(b.logger, event, b.dispatch(ctx, event))
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (b *memoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
