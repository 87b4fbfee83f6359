package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

const paymentProvider = "payment provider"

// PaymentSessionService starts hosted checkout for a stay. It never creates bookings.
type PaymentSessionService interface {
	CreatePaymentSession(ctx context.Context, userID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error)
}

// PaymentSessionConfig contains configuration for checkout creation
type PaymentSessionConfig struct {
	Currency      string
	SuccessURL    string
	CancelURL     string
	MaxStayNights int
	// Timeout bounds each provider call
	Timeout time.Duration
}

type paymentSessionService struct {
	roomRepo     repository.RoomRepository
	availability AvailabilityChecker
	gateway      gateway.PaymentGateway
	cfg          PaymentSessionConfig
}

// NewPaymentSessionService creates a new payment session service
func NewPaymentSessionService(
	roomRepo repository.RoomRepository,
	availability AvailabilityChecker,
	gw gateway.PaymentGateway,
	cfg *PaymentSessionConfig,
) PaymentSessionService {
	c := PaymentSessionConfig{Currency: "usd", MaxStayNights: 30, Timeout: 10 * time.Second}
	if cfg != nil {
		if cfg.Currency != "" {
			c.Currency = strings.ToLower(cfg.Currency)
		}
		if cfg.MaxStayNights > 0 {
			c.MaxStayNights = cfg.MaxStayNights
		}
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		c.SuccessURL = cfg.SuccessURL
		c.CancelURL = cfg.CancelURL
	}
	return &paymentSessionService{
		roomRepo:     roomRepo,
		availability: availability,
		gateway:      gw,
		cfg:          c,
	}
}

func (s *paymentSessionService) CreatePaymentSession(ctx context.Context, userID string, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment_session.create")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "empty request")
		return nil, domain.NewValidationError("", "request body is required")
	}
	if userID == "" {
		span.SetStatus(codes.Error, "missing user")
		return nil, domain.ErrUnauthorized
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("room_id", req.RoomID),
	)

	stay, err := domain.NewDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		span.SetStatus(codes.Error, "invalid dates")
		return nil, err
	}
	nights := stay.Nights()
	if nights < 1 {
		return nil, domain.NewValidationError("check_out", "stay must be at least one night")
	}
	if nights > s.cfg.MaxStayNights {
		span.SetStatus(codes.Error, "stay too long")
		return nil, domain.NewValidationError("check_out", fmt.Sprintf("stay cannot exceed %d nights", s.cfg.MaxStayNights))
	}

	room, err := s.roomRepo.GetByID(ctx, req.RoomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !room.Available {
		span.SetStatus(codes.Error, "room closed")
		return nil, domain.NewValidationError("room_id", "room is not open for booking")
	}

	// fail fast; the reconciler re-checks after payment
	available, err := s.availability.IsAvailable(ctx, room.ID, stay)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !available {
		span.SetStatus(codes.Error, "room unavailable")
		return nil, &domain.ConflictError{}
	}

	total := domain.CalculateTotal(nights, room.Price)
	checkout := &gateway.CheckoutRequest{
		Metadata: gateway.BookingMetadata{
			RoomID:          room.ID,
			UserID:          userID,
			CheckIn:         domain.FormatDate(stay.CheckIn),
			CheckOut:        domain.FormatDate(stay.CheckOut),
			Nights:          nights,
			TotalPrice:      total,
			GuestName:       strings.TrimSpace(req.GuestName),
			GuestEmail:      strings.TrimSpace(req.GuestEmail),
			SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		},
		ProductName:   fmt.Sprintf("Room %s - %s", room.Number, room.Name),
		NightlyPrice:  room.Price,
		Nights:        nights,
		Currency:      s.cfg.Currency,
		CustomerEmail: strings.TrimSpace(req.GuestEmail),
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(callCtx, checkout)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, domain.NewExternalServiceError(paymentProvider, err)
	}

	metrics.CheckoutSessions.Inc(ctx, attribute.String("gateway", s.gateway.Name()))
	span.SetAttributes(attribute.String("session_reference", session.ID))
	span.SetStatus(codes.Ok, "")

	return &dto.CheckoutResponse{
		SessionReference: session.ID,
		RedirectURL:      session.URL,
		RoomID:           room.ID,
		CheckIn:          checkout.Metadata.CheckIn,
		CheckOut:         checkout.Metadata.CheckOut,
		Nights:           nights,
		TotalPrice:       total,
		Currency:         s.cfg.Currency,
	}, nil
}
