package common

import "sync"

// EventType identifies the kind of lifecycle or data event raised by a
// client, server, or proxy component.
type EventType string

const (
	// EventConnected fires when a client transport establishes a connection.
	EventConnected EventType = "Connected"
	// EventDisconnected fires when a client transport loses its connection.
	EventDisconnected EventType = "Disconnected"
	// EventClientConnected fires when a server accepts a new connection.
	EventClientConnected EventType = "ClientConnected"
	// EventClientDisconnected fires when a server's connection closes.
	EventClientDisconnected EventType = "ClientDisconnected"
	// EventInputWritten fires after a successful coil or discrete-input write.
	EventInputWritten EventType = "InputWritten"
	// EventRegisterWritten fires after a successful register write.
	EventRegisterWritten EventType = "RegisterWritten"
)

// Event is the payload delivered to subscribers. Fields not relevant to
// Type are left at their zero value.
type Event struct {
	Type       EventType
	DeviceID   UnitID
	RemoteAddr string
	Address    Address
	Coils      []CoilValue
	Registers  []RegisterValue
}

// EventHandler receives dispatched events. Handlers run on the dispatcher's
// own goroutine; a slow or blocking handler only delays other handlers, it
// never blocks the session, store, or transport that raised the event.
type EventHandler func(Event)

// EventDispatcher fans events out to subscribers on a dedicated goroutine.
// Ref: design notes, "Events as hooks" - reimplement language-native event
// multicast as a subscriber list invoked off the session's own goroutine.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers []EventHandler

	queue chan Event
	done  chan struct{}
}

// NewEventDispatcher creates a dispatcher with the given queue depth and
// starts its delivery goroutine. A depth of 0 uses a sensible default.
func NewEventDispatcher(depth int) *EventDispatcher {
	if depth <= 0 {
		depth = 64
	}
	d := &EventDispatcher{
		queue: make(chan Event, depth),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *EventDispatcher) run() {
	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				return
			}
			d.mu.RLock()
			handlers := make([]EventHandler, len(d.handlers))
			copy(handlers, d.handlers)
			d.mu.RUnlock()
			for _, h := range handlers {
				h(ev)
			}
		case <-d.done:
			return
		}
	}
}

// Subscribe registers a handler. Returns an unsubscribe function.
func (d *EventDispatcher) Subscribe(h EventHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
	idx := len(d.handlers) - 1
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if idx < len(d.handlers) {
			d.handlers = append(d.handlers[:idx], d.handlers[idx+1:]...)
		}
	}
}

// Emit queues an event for best-effort delivery. If the queue is full the
// event is dropped rather than blocking the caller.
func (d *EventDispatcher) Emit(ev Event) {
	select {
	case d.queue <- ev:
	default:
	}
}

// Close stops the delivery goroutine. Queued events not yet delivered are
// discarded.
func (d *EventDispatcher) Close() {
	close(d.done)
}
