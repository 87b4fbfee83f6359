package handler

import (
	"net/http"

	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdminHandler manages rooms and bookings. Routes are guarded by RequireRole("admin").
type AdminHandler struct {
	rooms    service.RoomService
	bookings service.BookingService
}

func NewAdminHandler(rooms service.RoomService, bookings service.BookingService) *AdminHandler {
	return &AdminHandler{rooms: rooms, bookings: bookings}
}

// ListRooms handles GET /admin/rooms, including rooms closed for sale
func (h *AdminHandler) ListRooms(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.list_rooms")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var query dto.RoomListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}
	query.IncludeUnavailable = true

	result, err := h.rooms.ListRooms(ctx, &query)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// CreateRoom handles POST /admin/rooms
func (h *AdminHandler) CreateRoom(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.create_room")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.rooms.CreateRoom(ctx, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.String("room_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// UpdateRoom handles PUT /admin/rooms/:id
func (h *AdminHandler) UpdateRoom(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.update_room")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	roomID := c.Param("id")
	span.SetAttributes(attribute.String("room_id", roomID))

	var req dto.UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.rooms.UpdateRoom(ctx, roomID, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// DeleteRoom handles DELETE /admin/rooms/:id. The room is closed for sale,
// not removed, so existing bookings keep their room.
func (h *AdminHandler) DeleteRoom(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.delete_room")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	roomID := c.Param("id")
	span.SetAttributes(attribute.String("room_id", roomID))

	if err := h.rooms.DeleteRoom(ctx, roomID); err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListBookings handles GET /admin/bookings?status=&room_id=&user_id=
func (h *AdminHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.list_bookings")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var query dto.ListBookingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.bookings.ListBookings(ctx, &query)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("count", len(result.Bookings)))
	response.OK(c, result)
}

// UpdateDates handles PATCH /admin/bookings/:id/dates
func (h *AdminHandler) UpdateDates(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.update_dates")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	var req dto.UpdateDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.bookings.UpdateDates(ctx, bookingID, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetStatus(codes.Ok, "")
	response.OK(c, result)
}

// CompleteBooking handles POST /admin/bookings/:id/complete
func (h *AdminHandler) CompleteBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.complete_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookings.CompleteBooking(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// CancelBooking handles POST /admin/bookings/:id/cancel
func (h *AdminHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.cancel_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	span.SetAttributes(attribute.String("booking_id", bookingID))

	result, err := h.bookings.AdminCancelBooking(ctx, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}
