package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// EventType names what happened in the controller.
type EventType string

const (
	EventLogAppended           EventType = "log_appended"
	EventStatusChanged         EventType = "status_changed"
	EventConfirmationRequested EventType = "confirmation_requested"
	EventConfirmationResolved  EventType = "confirmation_resolved"
	EventSessionCreated        EventType = "session_created"
	EventSessionDeleted        EventType = "session_deleted"
	EventActiveChanged         EventType = "active_changed"
)

// AllEventTypes is the subscription used when none is given.
var AllEventTypes = []EventType{
	EventLogAppended,
	EventStatusChanged,
	EventConfirmationRequested,
	EventConfirmationResolved,
	EventSessionCreated,
	EventSessionDeleted,
	EventActiveChanged,
}

// Event is the envelope delivered to subscribers.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// StatusPayload accompanies EventStatusChanged.
type StatusPayload struct {
	Status      schemas.SessionStatus `json:"status"`
	CurrentStep int                   `json:"currentStep"`
	TotalSteps  int                   `json:"totalSteps"`
}

// ResolutionPayload accompanies EventConfirmationResolved.
type ResolutionPayload struct {
	Action    string `json:"action"`
	Confirmed bool   `json:"confirmed"`
}

// EventBus fans controller events out to subscribers. Delivery never blocks
// the publisher: a subscriber whose buffer is full misses the event.
type EventBus struct {
	logger *zap.Logger

	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	isShutdown  bool
}

// NewEventBus creates a bus with per-subscriber buffers of bufferSize.
func NewEventBus(logger *zap.Logger, bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventBus{
		logger:      logger.Named("event_bus"),
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Publish delivers ev to every subscriber of its type.
func (b *EventBus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.isShutdown {
		return
	}
	for _, ch := range b.subscribers[ev.Type] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("Dropping event for slow subscriber.",
				zap.String("event_type", string(ev.Type)),
				zap.String("session_id", ev.SessionID))
		}
	}
}

// Subscribe returns a channel of events of the given types (all types when
// none are given) and a function that ends the subscription.
func (b *EventBus) Subscribe(types ...EventType) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.isShutdown {
		close(ch)
		return ch, func() {}
	}
	if len(types) == 0 {
		types = AllEventTypes
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.isShutdown {
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, sub := range subs {
					if sub == ch {
						b.subscribers[t] = append(subs[:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Shutdown closes every subscriber channel. Later publishes are dropped.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	b.isShutdown = true

	unique := make(map[chan Event]struct{})
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			unique[ch] = struct{}{}
		}
	}
	for ch := range unique {
		close(ch)
	}
	b.subscribers = make(map[EventType][]chan Event)
}
