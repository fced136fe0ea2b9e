// Package events provides the in-process event bus used to connect the intake
// widget with its owner (renderers, notification sinks, deletion relays).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/rescale-intake/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventNotify   EventType = "notify" // User-facing notification (e.g. duplicate file)

	// Batch visibility transitions of the aggregate progress indicator
	EventBatchShown  EventType = "batch_shown"
	EventBatchHidden EventType = "batch_hidden"

	// Registry changes
	EventAttached EventType = "attached"
	EventDetached EventType = "detached"

	// EventDeleteRequested carries content ids that should be removed from the remote store.
	EventDeleteRequested EventType = "delete_requested"

	// EventDetachRequested is a user intent addressed to one widget instance.
	EventDetachRequested EventType = "detach_requested"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
	Source    string // Instance handle of the publishing widget, if any
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ProgressEvent reports the aggregate batch percentage.
type ProgressEvent struct {
	BaseEvent
	Percent float64 // 0 to 100
	Slots   int     // Slots known to the batch
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
}

// NotifyEvent is a non-blocking user notification.
type NotifyEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
}

// BatchEvent marks a batch becoming visible or hidden.
type BatchEvent struct {
	BaseEvent
	Batch uint64
}

// AttachmentEvent reports a registry change for one content id.
type AttachmentEvent struct {
	BaseEvent
	ContentID string
	Name      string
	Status    int
}

// DeleteEvent asks for remote deletion of the listed content ids.
type DeleteEvent struct {
	BaseEvent
	ContentIDs []string
}

// DetachRequestEvent asks the widget identified by Target to detach ContentID.
type DetachRequestEvent struct {
	BaseEvent
	Target    string
	ContentID string
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers (non-blocking)
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, source string) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now(), Source: source},
		Level:     level,
		Message:   message,
	})
}

// PublishNotify is a convenience method for publishing user notifications
func (eb *EventBus) PublishNotify(level LogLevel, message, source string) {
	eb.Publish(&NotifyEvent{
		BaseEvent: BaseEvent{EventType: EventNotify, Time: time.Now(), Source: source},
		Level:     level,
		Message:   message,
	})
}

// PublishProgress is a convenience method for publishing progress events
func (eb *EventBus) PublishProgress(percent float64, slots int, source string) {
	eb.Publish(&ProgressEvent{
		BaseEvent: BaseEvent{EventType: EventProgress, Time: time.Now(), Source: source},
		Percent:   percent,
		Slots:     slots,
	})
}

// PublishDelete is a convenience method for publishing deletion requests
func (eb *EventBus) PublishDelete(ids []string, source string) {
	cp := make([]string, len(ids))
	copy(cp, ids)
	eb.Publish(&DeleteEvent{
		BaseEvent:  BaseEvent{EventType: EventDeleteRequested, Time: time.Now(), Source: source},
		ContentIDs: cp,
	})
}

// PublishAttachment is a convenience method for publishing registry changes
func (eb *EventBus) PublishAttachment(t EventType, id, name string, status int, source string) {
	eb.Publish(&AttachmentEvent{
		BaseEvent: BaseEvent{EventType: t, Time: time.Now(), Source: source},
		ContentID: id,
		Name:      name,
		Status:    status,
	})
}

// PublishDetachRequest asks the widget identified by target to detach id
func (eb *EventBus) PublishDetachRequest(target, id, source string) {
	eb.Publish(&DetachRequestEvent{
		BaseEvent: BaseEvent{EventType: EventDetachRequested, Time: time.Now(), Source: source},
		Target:    target,
		ContentID: id,
	})
}

// Unsubscribe removes a subscription channel from a specific event type.
// The channel is closed so a consumer ranging over it terminates.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// and from the all-events list.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	var found chan Event
	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				found = subCh
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			found = subCh
			break
		}
	}

	if found != nil {
		close(found)
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
