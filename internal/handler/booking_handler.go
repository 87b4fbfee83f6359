package handler

import (
	"net/http"
	"strconv"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles the customer booking flow: checkout, confirm and
// managing one's own bookings
type BookingHandler struct {
	payments   service.PaymentSessionService
	reconciler service.Reconciler
	bookings   service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(
	payments service.PaymentSessionService,
	reconciler service.Reconciler,
	bookings service.BookingService,
) *BookingHandler {
	return &BookingHandler{
		payments:   payments,
		reconciler: reconciler,
		bookings:   bookings,
	}
}

// Checkout handles POST /bookings/checkout
func (h *BookingHandler) Checkout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.checkout")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("room_id", req.RoomID),
	)

	result, err := h.payments.CreatePaymentSession(ctx, userID, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("session_reference", result.SessionReference))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// Confirm handles POST /confirm. A newly created booking answers 201; a
// repeated confirm of the same payment answers 200 with the same booking.
func (h *BookingHandler) Confirm(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}
	ref := req.Reference()
	if ref == "" {
		err := domain.NewValidationError("session_reference", "is required")
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("session_reference", ref),
	)

	result, err := h.reconciler.Confirm(ctx, ref, userID)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("booking_id", result.Booking.ID),
		attribute.Bool("created", result.Created),
	)
	span.SetStatus(codes.Ok, "")

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.FromBooking(result.Booking))
}

// ListMine handles GET /bookings
func (h *BookingHandler) ListMine(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list_mine")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.bookings.GetUserBookings(ctx, userID, limit, offset)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("count", len(result.Bookings)))
	response.OK(c, result)
}

// Get handles GET /bookings/:id. Admins may read any booking.
func (h *BookingHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	isAdmin := middleware.GetRole(c) == domain.RoleAdmin
	result, err := h.bookings.GetBooking(ctx, bookingID, userID, isAdmin)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Cancel handles POST /bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	result, err := h.bookings.CancelBooking(ctx, bookingID, userID)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	response.OK(c, result)
}
