package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrSessionNotFound is returned when the provider has no session with the given id
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrInvalidMetadata is returned when a session lacks booking metadata
	ErrInvalidMetadata = errors.New("checkout session has invalid booking metadata")
)

// Provider payment statuses of a checkout session
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// PaymentGateway is a hosted-checkout payment provider
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error)
	// GetSession returns ErrSessionNotFound when id is unknown
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions returns completed sessions created after params.CreatedAfter
	ListSessions(ctx context.Context, params ListSessionsParams) ([]*Session, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
	Name() string
}

// CheckoutRequest describes one stay to be paid
type CheckoutRequest struct {
	Metadata      BookingMetadata
	ProductName   string
	NightlyPrice  float64
	Nights        int
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Session is a provider checkout session
type Session struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	CreatedAt       time.Time
}

// IsPaid reports whether the provider has captured the payment
func (s *Session) IsPaid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// ListSessionsParams bounds a ListSessions call. Sessions come newest first;
// StartingAfter is the id of the last session of the previous page.
type ListSessionsParams struct {
	CreatedAfter  time.Time
	Limit         int
	StartingAfter string
}

// RefundRequest refunds the payment behind a session
type RefundRequest struct {
	SessionID       string
	PaymentIntentID string
	Reason          string
	IdempotencyKey  string
}

// RefundResult is the provider's refund
type RefundResult struct {
	ID     string
	Status string
}

// BookingMetadata is attached to a session at creation and read back on
// confirmation. It is the only trusted source of room, dates and price.
type BookingMetadata struct {
	RoomID          string
	UserID          string
	CheckIn         string
	CheckOut        string
	Nights          int
	TotalPrice      float64
	GuestName       string
	GuestEmail      string
	SpecialRequests string
}

const (
	metaRoomID          = "room_id"
	metaUserID          = "user_id"
	metaCheckIn         = "check_in"
	metaCheckOut        = "check_out"
	metaNights          = "nights"
	metaTotalPrice      = "total_price"
	metaGuestName       = "guest_name"
	metaGuestEmail      = "guest_email"
	metaSpecialRequests = "special_requests"

	// Stripe rejects metadata values longer than 500 characters
	maxMetadataValue = 500
)

// ToMap encodes m as provider metadata
func (m BookingMetadata) ToMap() map[string]string {
	out := map[string]string{
		metaRoomID:     m.RoomID,
		metaUserID:     m.UserID,
		metaCheckIn:    m.CheckIn,
		metaCheckOut:   m.CheckOut,
		metaNights:     strconv.Itoa(m.Nights),
		metaTotalPrice: strconv.FormatFloat(m.TotalPrice, 'f', 2, 64),
	}
	if m.GuestName != "" {
		out[metaGuestName] = truncate(m.GuestName)
	}
	if m.GuestEmail != "" {
		out[metaGuestEmail] = truncate(m.GuestEmail)
	}
	if m.SpecialRequests != "" {
		out[metaSpecialRequests] = truncate(m.SpecialRequests)
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxMetadataValue {
		return string(r[:maxMetadataValue])
	}
	return s
}

// ParseBookingMetadata decodes provider metadata. Room, user and dates are required.
func ParseBookingMetadata(md map[string]string) (*BookingMetadata, error) {
	m := &BookingMetadata{
		RoomID:          md[metaRoomID],
		UserID:          md[metaUserID],
		CheckIn:         md[metaCheckIn],
		CheckOut:        md[metaCheckOut],
		GuestName:       md[metaGuestName],
		GuestEmail:      md[metaGuestEmail],
		SpecialRequests: md[metaSpecialRequests],
	}

	for key, v := range map[string]string{metaRoomID: m.RoomID, metaUserID: m.UserID, metaCheckIn: m.CheckIn, metaCheckOut: m.CheckOut} {
		if v == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, key)
		}
	}

	if raw := md[metaNights]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: nights %q", ErrInvalidMetadata, raw)
		}
		m.Nights = n
	}
	if raw := md[metaTotalPrice]; raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: total_price %q", ErrInvalidMetadata, raw)
		}
		m.TotalPrice = p
	}
	return m, nil
}
