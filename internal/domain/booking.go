package domain

import "time"

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// Booking is a paid reservation of a room for a stay.
// PaymentReference is unique across all bookings.
type Booking struct {
	ID               string        `json:"id"`
	RoomID           string        `json:"room_id"`
	UserID           string        `json:"user_id"`
	GuestName        string        `json:"guest_name"`
	GuestEmail       string        `json:"guest_email"`
	CheckIn          time.Time     `json:"check_in"`
	CheckOut         time.Time     `json:"check_out"`
	TotalPrice       float64       `json:"total_price"`
	Status           BookingStatus `json:"status"`
	PaymentReference string        `json:"payment_reference"`
	SpecialRequests  string        `json:"special_requests,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Range returns the stay interval
func (b *Booking) Range() DateRange {
	return DateRange{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// Nights returns the number of nights booked
func (b *Booking) Nights() int {
	return b.Range().Nights()
}

// IsActive reports whether the booking holds its room
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// Cancel moves a confirmed booking to cancelled
func (b *Booking) Cancel(now time.Time) error {
	return b.transition(BookingStatusCancelled, now)
}

// Complete moves a confirmed booking to completed
func (b *Booking) Complete(now time.Time) error {
	return b.transition(BookingStatusCompleted, now)
}

func (b *Booking) transition(to BookingStatus, now time.Time) error {
	if b.Status != BookingStatusConfirmed {
		return ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// BookingFilter narrows booking listings
type BookingFilter struct {
	UserID string
	RoomID string
	Status BookingStatus
	Limit  int
	Offset int
}
