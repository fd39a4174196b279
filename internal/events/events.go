package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
	// AvailabilityChanged is published with a zero Date when weekly rules
	// change, since every date of the ground may be affected.
	AvailabilityChanged = "availability.changed"
	BlockChanged        = "availability.block_changed"
)

// SlotTypes lists every event that changes what a status read returns.
var SlotTypes = []string{
	ReservationCreated, ReservationConfirmed, ReservationCancelled,
	AvailabilityChanged, BlockChanged,
}

// Event is a change to the slots of one ground.
type Event struct {
	Type          string
	GroundID      int64
	Date          time.Time
	ReservationID int64
	CreatedAt     time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. A nil logger discards handler errors.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run
// synchronously; a failing handler is logged and does not stop the others.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).
				Str("event", event.Type).
				Int64("ground_id", event.GroundID).
				Msg("event handler failed")
		}
	}
}
