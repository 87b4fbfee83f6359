package dto

import (
	"strings"
	"time"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

// CheckoutRequest starts payment for a stay
type CheckoutRequest struct {
	RoomID          string `json:"room_id" binding:"required"`
	CheckIn         string `json:"check_in" binding:"required"`
	CheckOut        string `json:"check_out" binding:"required"`
	GuestName       string `json:"guest_name" binding:"required,max=200"`
	GuestEmail      string `json:"guest_email" binding:"required,email"`
	SpecialRequests string `json:"special_requests,omitempty" binding:"max=1000"`
}

// CheckoutResponse points the client at the provider's hosted checkout
type CheckoutResponse struct {
	SessionReference string  `json:"session_reference"`
	RedirectURL      string  `json:"redirect_url"`
	RoomID           string  `json:"room_id"`
	CheckIn          string  `json:"check_in"`
	CheckOut         string  `json:"check_out"`
	Nights           int     `json:"nights"`
	TotalPrice       float64 `json:"total_price"`
	Currency         string  `json:"currency"`
}

// ConfirmRequest accepts both snake and camel case reference fields
type ConfirmRequest struct {
	SessionReference      string `json:"session_reference"`
	SessionReferenceCamel string `json:"sessionReference"`
}

// Reference returns whichever reference field was sent
func (r *ConfirmRequest) Reference() string {
	if ref := strings.TrimSpace(r.SessionReference); ref != "" {
		return ref
	}
	return strings.TrimSpace(r.SessionReferenceCamel)
}

// UpdateDatesRequest moves a booking to new dates
type UpdateDatesRequest struct {
	CheckIn  string `json:"check_in" binding:"required"`
	CheckOut string `json:"check_out" binding:"required"`
}

// ListBookingsQuery filters the admin booking list
type ListBookingsQuery struct {
	Status string `form:"status"`
	RoomID string `form:"room_id"`
	UserID string `form:"user_id"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// BookingResponse is a booking in API responses
type BookingResponse struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"room_id"`
	UserID           string    `json:"user_id"`
	GuestName        string    `json:"guest_name"`
	GuestEmail       string    `json:"guest_email"`
	CheckIn          string    `json:"check_in"`
	CheckOut         string    `json:"check_out"`
	Nights           int       `json:"nights"`
	TotalPrice       float64   `json:"total_price"`
	Status           string    `json:"status"`
	PaymentReference string    `json:"payment_reference"`
	SpecialRequests  string    `json:"special_requests,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BookingListResponse is one page of bookings
type BookingListResponse struct {
	Bookings []*BookingResponse `json:"bookings"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// FromBooking converts a domain booking
func FromBooking(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:               b.ID,
		RoomID:           b.RoomID,
		UserID:           b.UserID,
		GuestName:        b.GuestName,
		GuestEmail:       b.GuestEmail,
		CheckIn:          domain.FormatDate(b.CheckIn),
		CheckOut:         domain.FormatDate(b.CheckOut),
		Nights:           b.Nights(),
		TotalPrice:       b.TotalPrice,
		Status:           string(b.Status),
		PaymentReference: b.PaymentReference,
		SpecialRequests:  b.SpecialRequests,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}

// FromBookings converts a page of bookings
func FromBookings(bookings []*domain.Booking, limit, offset int) *BookingListResponse {
	out := &BookingListResponse{
		Bookings: make([]*BookingResponse, 0, len(bookings)),
		Limit:    limit,
		Offset:   offset,
	}
	for _, b := range bookings {
		out.Bookings = append(out.Bookings, FromBooking(b))
	}
	return out
}
