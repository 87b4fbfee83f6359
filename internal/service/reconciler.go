package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// ConfirmResult is the booking for a payment reference. Created is false
// when an earlier call already placed it.
type ConfirmResult struct {
	Booking *domain.Booking
	Created bool
}

// Reconciler turns a paid checkout session into exactly one booking
type Reconciler interface {
	// Confirm places the booking for a session paid by callerUserID
	Confirm(ctx context.Context, sessionReference, callerUserID string) (*ConfirmResult, error)
	// ConfirmFromProvider is Confirm for provider-authenticated callers
	// (webhook, sweeper). The session's own user becomes the owner.
	ConfirmFromProvider(ctx context.Context, sessionReference string) (*ConfirmResult, error)
}

// ReconcilerConfig contains configuration for the reconciler
type ReconcilerConfig struct {
	Currency string
	Timeout  time.Duration
}

type reconciler struct {
	bookingRepo    repository.BookingRepository
	roomRepo       repository.RoomRepository
	availability   AvailabilityChecker
	gateway        gateway.PaymentGateway
	eventPublisher EventPublisher
	log            *logger.Logger
	currency       string
	timeout        time.Duration
	now            func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(
	bookingRepo repository.BookingRepository,
	roomRepo repository.RoomRepository,
	availability AvailabilityChecker,
	gw gateway.PaymentGateway,
	eventPublisher EventPublisher,
	cfg *ReconcilerConfig,
) Reconciler {
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	r := &reconciler{
		bookingRepo:    bookingRepo,
		roomRepo:       roomRepo,
		availability:   availability,
		gateway:        gw,
		eventPublisher: eventPublisher,
		log:            logger.Get(),
		currency:       "usd",
		timeout:        10 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if cfg != nil {
		if cfg.Currency != "" {
			r.currency = cfg.Currency
		}
		if cfg.Timeout > 0 {
			r.timeout = cfg.Timeout
		}
	}
	return r
}

func (r *reconciler) Confirm(ctx context.Context, sessionReference, callerUserID string) (*ConfirmResult, error) {
	if callerUserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return r.reconcile(ctx, sessionReference, callerUserID, false)
}

func (r *reconciler) ConfirmFromProvider(ctx context.Context, sessionReference string) (*ConfirmResult, error) {
	return r.reconcile(ctx, sessionReference, "", true)
}

func (r *reconciler) reconcile(ctx context.Context, ref, caller string, trusted bool) (*ConfirmResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.confirm")
	defer span.End()

	ref = strings.TrimSpace(ref)
	if ref == "" {
		span.SetStatus(codes.Error, "missing reference")
		return nil, domain.NewValidationError("session_reference", "is required")
	}
	span.SetAttributes(
		attribute.String("payment_reference", ref),
		attribute.Bool("trusted", trusted),
	)

	// replay
	existing, err := r.bookingRepo.FindByPaymentReference(ctx, ref)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to look up booking: %w", err)
	}
	if existing != nil {
		return r.replay(ctx, span, existing, caller, trusted)
	}

	// provider session
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	session, err := r.gateway.GetSession(callCtx, ref)
	cancel()
	if err != nil {
		telemetry.Fail(span, err)
		if errors.Is(err, gateway.ErrSessionNotFound) {
			return nil, domain.NewNotFound("payment", ref)
		}
		metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeFailed))
		return nil, domain.NewExternalServiceError(paymentProvider, err)
	}

	// paid
	if !session.IsPaid() {
		span.SetStatus(codes.Error, "payment incomplete")
		metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeIncomplete))
		return nil, &domain.PaymentIncompleteError{Status: session.PaymentStatus}
	}

	// ownership
	if !trusted && session.Metadata["user_id"] != caller {
		span.SetStatus(codes.Error, "ownership")
		metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeForbidden))
		return nil, domain.ErrOwnership
	}

	// metadata is authoritative for room and dates
	md, err := gateway.ParseBookingMetadata(session.Metadata)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, domain.NewValidationError("metadata", err.Error())
	}
	stay, err := domain.NewDateRange(md.CheckIn, md.CheckOut)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	room, err := r.roomRepo.GetByID(ctx, md.RoomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	// authoritative availability
	available, err := r.availability.IsAvailable(ctx, room.ID, stay)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !available {
		return nil, r.conflict(ctx, span, session, md, stay)
	}

	// server-side price
	now := r.now()
	booking := &domain.Booking{
		ID:               uuid.New().String(),
		RoomID:           room.ID,
		UserID:           md.UserID,
		GuestName:        md.GuestName,
		GuestEmail:       md.GuestEmail,
		CheckIn:          stay.CheckIn,
		CheckOut:         stay.CheckOut,
		TotalPrice:       domain.CalculateTotal(stay.Nights(), room.Price),
		Status:           domain.BookingStatusConfirmed,
		PaymentReference: ref,
		SpecialRequests:  md.SpecialRequests,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// insert, recovering from lost races
	err = r.bookingRepo.Insert(ctx, booking)
	switch {
	case errors.Is(err, domain.ErrDuplicateKey):
		existing, ferr := r.bookingRepo.FindByPaymentReference(ctx, ref)
		if ferr != nil {
			telemetry.Fail(span, ferr)
			return nil, fmt.Errorf("failed to re-fetch booking: %w", ferr)
		}
		if existing == nil {
			telemetry.Fail(span, err)
			return nil, fmt.Errorf("booking for %s vanished after duplicate insert", ref)
		}
		return r.replay(ctx, span, existing, caller, trusted)
	case errors.Is(err, domain.ErrRoomUnavailable):
		return nil, r.conflict(ctx, span, session, md, stay)
	case err != nil:
		telemetry.Fail(span, err)
		metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeFailed))
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}

	if perr := r.eventPublisher.PublishBookingConfirmed(ctx, booking); perr != nil {
		r.log.ErrorContext(ctx, "failed to publish booking confirmed event",
			zap.String("booking_id", booking.ID), zap.Error(perr))
	}

	metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeCreated))
	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	r.log.InfoContext(ctx, "booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("room_id", booking.RoomID),
		zap.String("payment_reference", ref),
		zap.String("stay", stay.String()),
	)
	return &ConfirmResult{Booking: booking, Created: true}, nil
}

// replay returns a booking already placed for the reference. Only its owner
// may see it through the user-facing path.
func (r *reconciler) replay(ctx context.Context, span trace.Span, b *domain.Booking, caller string, trusted bool) (*ConfirmResult, error) {
	if !trusted && !b.IsOwnedBy(caller) {
		metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeForbidden))
		return nil, domain.ErrOwnership
	}
	span.SetAttributes(attribute.String("booking_id", b.ID), attribute.Bool("replayed", true))
	metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeReplayed))
	return &ConfirmResult{Booking: b, Created: false}, nil
}

// conflict reports a paid session whose room was taken and queues its refund
func (r *reconciler) conflict(ctx context.Context, span trace.Span, session *gateway.Session, md *gateway.BookingMetadata, stay domain.DateRange) error {
	span.SetStatus(codes.Error, "room unavailable after payment")
	metrics.Confirmations.Inc(ctx, metrics.Outcome(metrics.OutcomeConflict))

	currency := session.Currency
	if currency == "" {
		currency = r.currency
	}
	amount := md.TotalPrice
	if session.AmountTotal > 0 {
		amount = domain.FromMinorUnits(session.AmountTotal, currency)
	}

	refund := &domain.RefundRequest{
		EventID:          uuid.New().String(),
		PaymentReference: session.ID,
		PaymentIntentID:  session.PaymentIntentID,
		RoomID:           md.RoomID,
		UserID:           md.UserID,
		CheckIn:          domain.FormatDate(stay.CheckIn),
		CheckOut:         domain.FormatDate(stay.CheckOut),
		Amount:           amount,
		Currency:         currency,
		Reason:           "room no longer available for the paid dates",
		RequestedAt:      r.now(),
	}
	if err := r.eventPublisher.PublishRefundRequired(ctx, refund); err != nil {
		r.log.ErrorContext(ctx, "failed to publish refund request",
			zap.String("payment_reference", session.ID), zap.Error(err))
	} else {
		metrics.RefundsRequested.Inc(ctx)
	}

	r.log.WarnContext(ctx, "paid session lost its room",
		zap.String("payment_reference", session.ID),
		zap.String("room_id", md.RoomID),
		zap.String("stay", stay.String()),
	)
	return &domain.ConflictError{PaymentReference: session.ID, RefundRequired: true}
}
