// Package dispatcher fans domain events out to subscribers such as the CFO
// notifier and the activity log. Publishing never blocks the caller.
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/agreement-validation/internal/domain/event"
)

// Dispatcher delivers events to named subscribers
type Dispatcher interface {
	// Subscribe registers handler under name for the given event types.
	// Without types the handler receives every event. Reusing a name replaces
	// the earlier registration.
	Subscribe(name string, handler Handler, types ...event.Type)

	// Publish hands evt to each matching subscriber on its own goroutine
	Publish(ctx context.Context, evt *event.Event)

	// Subscriptions lists the registered handlers sorted by name
	Subscriptions() []Subscription

	// Close stops accepting events and waits for deliveries in flight
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu          sync.RWMutex
	subscribers []subscriber
	logger      Logger

	inflight sync.WaitGroup
	closed   bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(name string, handler Handler, types ...event.Type) {
	sub := subscriber{
		Subscription: Subscription{Name: name, Types: append([]event.Type(nil), types...)},
		handler:      handler,
	}

	d.mu.Lock()
	replaced := false
	for i := range d.subscribers {
		if d.subscribers[i].Name == name {
			d.subscribers[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		d.subscribers = append(d.subscribers, sub)
	}
	d.mu.Unlock()

	d.logInfo("Subscriber registered", "subscriber", name, "event_types", types, "replaced", replaced)
}

func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logError("Event dropped, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}
	targets := make([]subscriber, 0, len(d.subscribers))
	for _, s := range d.subscribers {
		if s.Matches(evt.Type) {
			targets = append(targets, s)
		}
	}
	// Counted under the lock so Close cannot start waiting between the
	// closed check and the Add.
	d.inflight.Add(len(targets))
	d.mu.RUnlock()

	d.logInfo("Publishing event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"subject_id", evt.SubjectID,
		"subscribers", len(targets),
	)

	for _, s := range targets {
		go func(s subscriber) {
			defer d.inflight.Done()
			if err := d.deliver(ctx, evt, s); err != nil {
				d.logError("Subscriber failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"subscriber", s.Name,
					"error", err,
				)
			}
		}(s)
	}
}

func (d *eventDispatcher) Subscriptions() []Subscription {
	d.mu.RLock()
	out := make([]Subscription, 0, len(d.subscribers))
	for _, s := range d.subscribers {
		out = append(out, Subscription{Name: s.Name, Types: append([]event.Type(nil), s.Types...)})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.logInfo("Closing dispatcher, waiting for deliveries in flight")
	d.inflight.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// deliver runs one handler, turning a panic into an error
func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event, s subscriber) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
