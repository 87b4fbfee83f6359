package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/repository"
)

// recordingPublisher captures published events
type recordingPublisher struct {
	mu      sync.Mutex
	events  []domain.BookingEventType
	refunds []*domain.RefundRequest
	err     error
}

func (p *recordingPublisher) record(t domain.BookingEventType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, t)
	return nil
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, _ *domain.Booking) error {
	return p.record(domain.BookingEventConfirmed)
}

func (p *recordingPublisher) PublishBookingCancelled(_ context.Context, _ *domain.Booking) error {
	return p.record(domain.BookingEventCancelled)
}

func (p *recordingPublisher) PublishBookingCompleted(_ context.Context, _ *domain.Booking) error {
	return p.record(domain.BookingEventCompleted)
}

func (p *recordingPublisher) PublishBookingRescheduled(_ context.Context, _ *domain.Booking) error {
	return p.record(domain.BookingEventRescheduled)
}

func (p *recordingPublisher) PublishRefundRequired(_ context.Context, req *domain.RefundRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.refunds = append(p.refunds, req)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []domain.BookingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.BookingEventType(nil), p.events...)
}

func (p *recordingPublisher) Refunds() []*domain.RefundRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.RefundRequest(nil), p.refunds...)
}

// mockGateway overrides single gateway calls; unset calls panic
type mockGateway struct {
	gateway.PaymentGateway
	CreateCheckoutSessionFunc func(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.Session, error)
	GetSessionFunc            func(ctx context.Context, id string) (*gateway.Session, error)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.Session, error) {
	return m.CreateCheckoutSessionFunc(ctx, req)
}

func (m *mockGateway) GetSession(ctx context.Context, id string) (*gateway.Session, error) {
	return m.GetSessionFunc(ctx, id)
}

func (m *mockGateway) Name() string { return "stub" }

// stubAvailability answers every check with Available
type stubAvailability struct {
	Available bool
}

func (s stubAvailability) IsAvailable(context.Context, string, domain.DateRange) (bool, error) {
	return s.Available, nil
}

func (s stubAvailability) IsAvailableExcluding(context.Context, string, domain.DateRange, string) (bool, error) {
	return s.Available, nil
}

type fixture struct {
	bookingRepo  *repository.MemoryBookingRepository
	roomRepo     *repository.MemoryRoomRepository
	gateway      *gateway.MockGateway
	events       *recordingPublisher
	availability AvailabilityChecker
}

func newFixture() *fixture {
	bookingRepo := repository.NewMemoryBookingRepository()
	return &fixture{
		bookingRepo:  bookingRepo,
		roomRepo:     repository.NewMemoryRoomRepository(),
		gateway:      gateway.NewMockGateway(&gateway.MockGatewayConfig{}),
		events:       &recordingPublisher{},
		availability: NewAvailabilityChecker(bookingRepo),
	}
}

func (f *fixture) reconciler() Reconciler {
	return NewReconciler(f.bookingRepo, f.roomRepo, f.availability, f.gateway, f.events, &ReconcilerConfig{Timeout: time.Second})
}

func (f *fixture) seedRoom(t *testing.T, price float64) *domain.Room {
	t.Helper()
	room := &domain.Room{
		ID:        uuid.New().String(),
		Number:    uuid.New().String()[:6],
		Name:      "Deluxe",
		Type:      "deluxe",
		Price:     price,
		Capacity:  2,
		Available: true,
	}
	require.NoError(t, f.roomRepo.Create(context.Background(), room))
	return room
}

func (f *fixture) seedBooking(t *testing.T, roomID, userID, checkIn, checkOut string) *domain.Booking {
	t.Helper()
	stay, err := domain.NewDateRange(checkIn, checkOut)
	require.NoError(t, err)
	b := &domain.Booking{
		ID:               uuid.New().String(),
		RoomID:           roomID,
		UserID:           userID,
		CheckIn:          stay.CheckIn,
		CheckOut:         stay.CheckOut,
		TotalPrice:       100,
		Status:           domain.BookingStatusConfirmed,
		PaymentReference: "cs_seed_" + uuid.New().String(),
	}
	require.NoError(t, f.bookingRepo.Insert(context.Background(), b))
	return b
}

// session stores a provider session for a stay and returns its reference
func (f *fixture) session(roomID, userID, checkIn, checkOut string, paid bool) string {
	id := "cs_test_" + uuid.New().String()
	s := &gateway.Session{
		ID:            id,
		Status:        "open",
		PaymentStatus: gateway.PaymentStatusUnpaid,
		AmountTotal:   30000,
		Currency:      "usd",
		Metadata: gateway.BookingMetadata{
			RoomID:     roomID,
			UserID:     userID,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Nights:     3,
			TotalPrice: 1,
			GuestName:  "Ada Lovelace",
			GuestEmail: "ada@example.com",
		}.ToMap(),
		CreatedAt: time.Now().UTC(),
	}
	if paid {
		s.Status = "complete"
		s.PaymentStatus = gateway.PaymentStatusPaid
		s.PaymentIntentID = "pi_" + id
	}
	f.gateway.Put(s)
	return id
}

func (f *fixture) countBookings(t *testing.T) int {
	t.Helper()
	all, err := f.bookingRepo.List(context.Background(), domain.BookingFilter{Limit: 200})
	require.NoError(t, err)
	return len(all)
}
