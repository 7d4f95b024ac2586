package socket

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/oopscheckmate/realtime/internal/metrics"
	"github.com/oopscheckmate/realtime/pkg/models"
)

// Handler receives decoded push events. Handlers run on the connection's read
// goroutine and must not block.
type Handler func(models.Event)

// Subscription undoes a single On registration. Cancel is idempotent and safe
// to call from inside a handler during dispatch.
type Subscription interface {
	Cancel()
}

// Dispatcher fans decoded events out to typed listeners. It replaces the
// original implementation's ambient browser event bus with an explicit
// observer interface: consumers hold a Subscription and cancel it on teardown.
type Dispatcher struct {
	mu      sync.Mutex
	nextID  int
	subs    map[models.EventType][]*subscription
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type subscription struct {
	d       *Dispatcher
	event   models.EventType
	id      int
	handler Handler
}

func (s *subscription) Cancel() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	list := s.d.subs[s.event]
	for i, sub := range list {
		if sub.id == s.id {
			s.d.subs[s.event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Dispatcher{
		subs:    make(map[models.EventType][]*subscription),
		logger:  logger,
		metrics: m,
	}
}

// On registers a handler for one event type. Handlers for the same event run
// in registration order.
func (d *Dispatcher) On(event models.EventType, handler Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &subscription{d: d, event: event, id: d.nextID, handler: handler}
	d.subs[event] = append(d.subs[event], sub)
	return sub
}

// Dispatch delivers an event to every handler registered for its type. A
// panicking handler is recovered and logged; delivery to sibling handlers
// continues. Iteration happens over a snapshot, so a handler may cancel
// itself or any other subscription mid-dispatch.
func (d *Dispatcher) Dispatch(ev models.Event) {
	event := ev.Type()

	d.mu.Lock()
	snapshot := make([]*subscription, len(d.subs[event]))
	copy(snapshot, d.subs[event])
	d.mu.Unlock()

	d.metrics.EventsDispatched.WithLabelValues(string(event)).Inc()
	for _, sub := range snapshot {
		d.invoke(event, sub.handler, ev)
	}
}

func (d *Dispatcher) invoke(event models.EventType, handler Handler, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.ListenerPanics.WithLabelValues(string(event)).Inc()
			d.logger.Error("event listener panicked",
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(ev)
}

// Count returns the number of handlers registered for an event type.
func (d *Dispatcher) Count(event models.EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[event])
}

// Total returns the number of handlers registered across all event types.
func (d *Dispatcher) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, list := range d.subs {
		n += len(list)
	}
	return n
}
