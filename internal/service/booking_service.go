package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// BookingService manages placed bookings. Bookings are only created by the Reconciler.
type BookingService interface {
	// GetBooking returns a booking visible to its owner, or to any admin
	GetBooking(ctx context.Context, bookingID, userID string, isAdmin bool) (*dto.BookingResponse, error)
	GetUserBookings(ctx context.Context, userID string, limit, offset int) (*dto.BookingListResponse, error)
	// CancelBooking cancels the caller's own confirmed booking
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	ListBookings(ctx context.Context, query *dto.ListBookingsQuery) (*dto.BookingListResponse, error)
	AdminCancelBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error)
	CompleteBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error)
	// UpdateDates moves a confirmed booking, re-pricing it at the current room rate
	UpdateDates(ctx context.Context, bookingID string, req *dto.UpdateDatesRequest) (*dto.BookingResponse, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	MaxStayNights int
}

type bookingService struct {
	bookingRepo    repository.BookingRepository
	roomRepo       repository.RoomRepository
	availability   AvailabilityChecker
	eventPublisher EventPublisher
	log            *logger.Logger
	maxStayNights  int
	now            func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	roomRepo repository.RoomRepository,
	availability AvailabilityChecker,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	maxStay := 30
	if cfg != nil && cfg.MaxStayNights > 0 {
		maxStay = cfg.MaxStayNights
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	return &bookingService{
		bookingRepo:    bookingRepo,
		roomRepo:       roomRepo,
		availability:   availability,
		eventPublisher: eventPublisher,
		log:            logger.Get(),
		maxStayNights:  maxStay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string, isAdmin bool) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !isAdmin && !b.IsOwnedBy(userID) {
		span.SetStatus(codes.Error, "ownership")
		return nil, domain.ErrOwnership
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromBooking(b), nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, userID string, limit, offset int) (*dto.BookingListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	bookings, err := s.bookingRepo.List(ctx, domain.BookingFilter{UserID: userID, Limit: limit, Offset: offset})
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromBookings(bookings, limit, offset), nil
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("user_id", userID))

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !b.IsOwnedBy(userID) {
		span.SetStatus(codes.Error, "ownership")
		return nil, domain.ErrOwnership
	}

	if err := s.transition(ctx, b, domain.BookingStatusCancelled); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return dto.FromBooking(b), nil
}

func (s *bookingService) ListBookings(ctx context.Context, q *dto.ListBookingsQuery) (*dto.BookingListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if q == nil {
		q = &dto.ListBookingsQuery{}
	}
	filter := domain.BookingFilter{
		UserID: q.UserID,
		RoomID: q.RoomID,
		Status: domain.BookingStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		span.SetStatus(codes.Error, "invalid status")
		return nil, domain.NewValidationError("status", "must be one of confirmed, cancelled, completed")
	}
	if filter.Offset < 0 {
		return nil, domain.NewValidationError("offset", "must not be negative")
	}

	bookings, err := s.bookingRepo.List(ctx, filter)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return dto.FromBookings(bookings, q.Limit, q.Offset), nil
}

func (s *bookingService) AdminCancelBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error) {
	return s.adminTransition(ctx, bookingID, domain.BookingStatusCancelled)
}

func (s *bookingService) CompleteBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error) {
	return s.adminTransition(ctx, bookingID, domain.BookingStatusCompleted)
}

func (s *bookingService) adminTransition(ctx context.Context, bookingID string, to domain.BookingStatus) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.admin_transition")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID), attribute.String("to", string(to)))

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if err := s.transition(ctx, b, to); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return dto.FromBooking(b), nil
}

// transition applies the status change in memory, then persists it with a
// compare-and-set so a concurrent transition cannot be overwritten
func (s *bookingService) transition(ctx context.Context, b *domain.Booking, to domain.BookingStatus) error {
	from := b.Status
	now := s.now()

	var err error
	switch to {
	case domain.BookingStatusCancelled:
		err = b.Cancel(now)
	case domain.BookingStatusCompleted:
		err = b.Complete(now)
	default:
		err = domain.ErrInvalidTransition
	}
	if err != nil {
		return err
	}

	if err := s.bookingRepo.UpdateStatus(ctx, b.ID, from, to, now); err != nil {
		return err
	}

	var publish func(context.Context, *domain.Booking) error
	switch to {
	case domain.BookingStatusCancelled:
		metrics.BookingsCancelled.Inc(ctx)
		publish = s.eventPublisher.PublishBookingCancelled
	case domain.BookingStatusCompleted:
		metrics.BookingsCompleted.Inc(ctx)
		publish = s.eventPublisher.PublishBookingCompleted
	}
	if perr := publish(ctx, b); perr != nil {
		s.log.ErrorContext(ctx, "failed to publish booking event",
			zap.String("booking_id", b.ID), zap.String("status", string(to)), zap.Error(perr))
	}
	return nil
}

func (s *bookingService) UpdateDates(ctx context.Context, bookingID string, req *dto.UpdateDatesRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.update_dates")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}
	stay, err := domain.NewDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		span.SetStatus(codes.Error, "invalid dates")
		return nil, err
	}
	if stay.Nights() > s.maxStayNights {
		return nil, domain.NewValidationError("check_out", fmt.Sprintf("stay cannot exceed %d nights", s.maxStayNights))
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if b.Status != domain.BookingStatusConfirmed {
		span.SetStatus(codes.Error, "not confirmed")
		return nil, domain.ErrInvalidTransition
	}

	available, err := s.availability.IsAvailableExcluding(ctx, b.RoomID, stay, b.ID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !available {
		span.SetStatus(codes.Error, "room unavailable")
		return nil, &domain.ConflictError{}
	}

	room, err := s.roomRepo.GetByID(ctx, b.RoomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	now := s.now()
	total := domain.CalculateTotal(stay.Nights(), room.Price)
	if err := s.bookingRepo.UpdateDates(ctx, b.ID, stay, total, now); err != nil {
		telemetry.Fail(span, err)
		if errors.Is(err, domain.ErrRoomUnavailable) {
			return nil, &domain.ConflictError{}
		}
		return nil, err
	}

	b.CheckIn, b.CheckOut = stay.CheckIn, stay.CheckOut
	b.TotalPrice = total
	b.UpdatedAt = now

	metrics.BookingsRescheduled.Inc(ctx)
	if perr := s.eventPublisher.PublishBookingRescheduled(ctx, b); perr != nil {
		s.log.ErrorContext(ctx, "failed to publish booking rescheduled event",
			zap.String("booking_id", b.ID), zap.Error(perr))
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromBooking(b), nil
}
