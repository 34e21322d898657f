package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"bookingsvc/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event represents a lightweight in-process event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event *Event) error

// EventBus provides in-process pub/sub. It is the "local" reminder bus used
// when no external broker is configured.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Dispatch runs every handler of the event type synchronously and joins their errors.
func (b *EventBus) Dispatch(ctx context.Context, event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish logs the reminder and hands it to local subscribers of ReminderDue.
func (b *EventBus) Publish(ctx context.Context, reminder models.ReminderDue) error {
	event, err := NewJSONEvent(reminder.Type, reminder)
	if err != nil {
		return err
	}

	b.logger.Info().
		Str("event_id", event.ID).
		Str("booking_id", reminder.BookingID).
		Str("user_id", reminder.UserID).
		Int64("ttl", reminder.TTL).
		RawJSON("detail", event.Payload).
		Msg("reminder delivered to local bus")

	return b.Dispatch(ctx, &event)
}

// NewJSONEvent builds an Event with a JSON payload.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
