package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medqueue/opd-booking/internal/models"
)

type EventType string

const (
	BookingCreated    EventType = "booking.created"
	BookingPaid       EventType = "booking.paid"
	BookingCancelled  EventType = "booking.cancelled"
	StatusChanged     EventType = "booking.status_changed"
	EmergencyInserted EventType = "booking.emergency_inserted"
	PositionChanged   EventType = "booking.position_changed"
)

// Event describes one committed booking mutation. Events are emitted after
// the store transaction commits, so a consumer that re-reads on receipt
// always observes the post-mutation state.
type Event struct {
	Type          EventType            `json:"type"`
	BookingID     uuid.UUID            `json:"booking_id"`
	UserID        *uuid.UUID           `json:"user_id,omitempty"`
	SlotID        uuid.UUID            `json:"slot_id"`
	QueuePosition int                  `json:"queue_position"`
	BookingStatus models.BookingStatus `json:"booking_status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// BrokerPublisher mirrors events to an external broker. Satisfied by
// pkg/rabbitmq.Publisher.
type BrokerPublisher interface {
	Publish(routingKey string, payload any) error
}

type subscriber struct {
	ch chan Event
}

// Hub fans committed mutation events out to in-process subscribers keyed by
// booking id or patient id, and mirrors every event to the broker when one is
// configured. Broker failures are logged and dropped: the store commit already
// happened and delivery here is advisory.
type Hub struct {
	mu        sync.RWMutex
	byBooking map[uuid.UUID]map[*subscriber]struct{}
	byPatient map[uuid.UUID]map[*subscriber]struct{}
	broker    BrokerPublisher
	log       zerolog.Logger
}

func NewHub(broker BrokerPublisher, log zerolog.Logger) *Hub {
	return &Hub{
		byBooking: make(map[uuid.UUID]map[*subscriber]struct{}),
		byPatient: make(map[uuid.UUID]map[*subscriber]struct{}),
		broker:    broker,
		log:       log,
	}
}

const subscriberBuffer = 16

// SubscribeBooking registers interest in one booking. The returned cancel
// func must be called to release the subscription.
func (h *Hub) SubscribeBooking(bookingID uuid.UUID) (<-chan Event, func()) {
	return h.subscribe(h.byBooking, bookingID)
}

// SubscribePatient registers interest in every booking of one patient.
func (h *Hub) SubscribePatient(userID uuid.UUID) (<-chan Event, func()) {
	return h.subscribe(h.byPatient, userID)
}

func (h *Hub) subscribe(index map[uuid.UUID]map[*subscriber]struct{}, key uuid.UUID) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	set, ok := index[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		index[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := index[key]; ok {
			if _, live := set[sub]; live {
				delete(set, sub)
				close(sub.ch)
				if len(set) == 0 {
					delete(index, key)
				}
			}
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to matching subscribers and the broker. Sends
// never block: a subscriber that has fallen subscriberBuffer events behind
// misses the event and is expected to re-read on its next poll.
func (h *Hub) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	h.mu.RLock()
	for sub := range h.byBooking[ev.BookingID] {
		sub.send(ev)
	}
	if ev.UserID != nil {
		for sub := range h.byPatient[*ev.UserID] {
			sub.send(ev)
		}
	}
	h.mu.RUnlock()

	if h.broker != nil {
		if err := h.broker.Publish(string(ev.Type), ev); err != nil {
			h.log.Warn().Err(err).
				Str("type", string(ev.Type)).
				Str("booking_id", ev.BookingID.String()).
				Msg("broker publish failed, event dropped")
		}
	}
}

func (s *subscriber) send(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}
