package handler

import (
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RoomHandler serves the public room catalogue
type RoomHandler struct {
	rooms service.RoomService
}

func NewRoomHandler(rooms service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// List handles GET /rooms
func (h *RoomHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.room.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var query dto.RoomListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}
	query.IncludeUnavailable = false

	result, err := h.rooms.ListRooms(ctx, &query)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("count", len(result.Rooms)))
	response.OK(c, result)
}

// Get handles GET /rooms/:id
func (h *RoomHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.room.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	roomID := c.Param("id")
	span.SetAttributes(attribute.String("room_id", roomID))

	result, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}

// Availability handles GET /rooms/:id/availability?check_in=&check_out=
func (h *RoomHandler) Availability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.room.availability")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var query dto.AvailabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	roomID := c.Param("id")
	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("check_in", query.CheckIn),
		attribute.String("check_out", query.CheckOut),
	)

	result, err := h.rooms.CheckAvailability(ctx, roomID, &query)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.Bool("available", result.Available))
	response.OK(c, result)
}
