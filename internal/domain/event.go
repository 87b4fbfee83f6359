package domain

import (
	"time"
)

// BookingEventType identifies a booking lifecycle event
type BookingEventType string

const (
	BookingEventConfirmed      BookingEventType = "booking.confirmed"
	BookingEventCancelled      BookingEventType = "booking.cancelled"
	BookingEventCompleted      BookingEventType = "booking.completed"
	BookingEventRescheduled    BookingEventType = "booking.rescheduled"
	BookingEventRefundRequired BookingEventType = "booking.refund_required"
)

// BookingEvent is published on every booking state change
type BookingEvent struct {
	EventID          string           `json:"event_id"`
	EventType        BookingEventType `json:"event_type"`
	OccurredAt       time.Time        `json:"occurred_at"`
	BookingID        string           `json:"booking_id"`
	RoomID           string           `json:"room_id"`
	UserID           string           `json:"user_id"`
	CheckIn          string           `json:"check_in"`
	CheckOut         string           `json:"check_out"`
	TotalPrice       float64          `json:"total_price"`
	Status           BookingStatus    `json:"status"`
	PaymentReference string           `json:"payment_reference"`
}

// NewBookingEvent builds an event for b
func NewBookingEvent(eventType BookingEventType, b *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       time.Now().UTC(),
		BookingID:        b.ID,
		RoomID:           b.RoomID,
		UserID:           b.UserID,
		CheckIn:          FormatDate(b.CheckIn),
		CheckOut:         FormatDate(b.CheckOut),
		TotalPrice:       b.TotalPrice,
		Status:           b.Status,
		PaymentReference: b.PaymentReference,
	}
}

// Key partitions events of one booking together
func (e *BookingEvent) Key() string {
	return e.BookingID
}

// RefundRequest asks the refund worker to return a charge whose booking
// could not be placed
type RefundRequest struct {
	EventID          string    `json:"event_id"`
	PaymentReference string    `json:"payment_reference"`
	PaymentIntentID  string    `json:"payment_intent_id,omitempty"`
	RoomID           string    `json:"room_id"`
	UserID           string    `json:"user_id"`
	CheckIn          string    `json:"check_in"`
	CheckOut         string    `json:"check_out"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Reason           string    `json:"reason"`
	RequestedAt      time.Time `json:"requested_at"`
}

// Key partitions refunds by payment reference
func (r *RefundRequest) Key() string {
	return r.PaymentReference
}
