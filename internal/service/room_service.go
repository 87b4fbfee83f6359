package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// RoomService is the room catalogue: public browsing plus admin management
type RoomService interface {
	ListRooms(ctx context.Context, query *dto.RoomListQuery) (*dto.RoomListResponse, error)
	GetRoom(ctx context.Context, roomID string) (*dto.RoomResponse, error)
	CheckAvailability(ctx context.Context, roomID string, query *dto.AvailabilityQuery) (*dto.AvailabilityResponse, error)

	CreateRoom(ctx context.Context, req *dto.CreateRoomRequest) (*dto.RoomResponse, error)
	UpdateRoom(ctx context.Context, roomID string, req *dto.UpdateRoomRequest) (*dto.RoomResponse, error)
	// DeleteRoom closes a room for booking. Rows are kept since bookings reference them.
	DeleteRoom(ctx context.Context, roomID string) error
}

type roomService struct {
	roomRepo     repository.RoomRepository
	availability AvailabilityChecker
	now          func() time.Time
}

// NewRoomService creates a new room service
func NewRoomService(roomRepo repository.RoomRepository, availability AvailabilityChecker) RoomService {
	return &roomService{
		roomRepo:     roomRepo,
		availability: availability,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *roomService) ListRooms(ctx context.Context, q *dto.RoomListQuery) (*dto.RoomListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.room.list")
	defer span.End()

	if q == nil {
		q = &dto.RoomListQuery{}
	}
	if q.MinCapacity < 0 || q.Offset < 0 {
		return nil, domain.NewValidationError("", "min_capacity and offset must not be negative")
	}

	var stay *domain.DateRange
	if q.CheckIn != "" || q.CheckOut != "" {
		r, err := domain.NewDateRange(q.CheckIn, q.CheckOut)
		if err != nil {
			span.SetStatus(codes.Error, "invalid dates")
			return nil, err
		}
		stay = &r
		span.SetAttributes(attribute.String("stay", r.String()))
	}

	rooms, err := s.roomRepo.List(ctx, domain.RoomFilter{
		Type:          strings.TrimSpace(q.Type),
		MinCapacity:   q.MinCapacity,
		OnlyAvailable: !q.IncludeUnavailable,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	out := &dto.RoomListResponse{Rooms: make([]*dto.RoomResponse, 0, len(rooms)), Limit: q.Limit, Offset: q.Offset}
	for _, room := range rooms {
		if stay != nil {
			free, err := s.availability.IsAvailable(ctx, room.ID, *stay)
			if err != nil {
				telemetry.Fail(span, err)
				return nil, err
			}
			if !free {
				continue
			}
		}
		out.Rooms = append(out.Rooms, dto.FromRoom(room))
	}

	span.SetAttributes(attribute.Int("count", len(out.Rooms)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (s *roomService) GetRoom(ctx context.Context, roomID string) (*dto.RoomResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.room.get")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", roomID))

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return dto.FromRoom(room), nil
}

func (s *roomService) CheckAvailability(ctx context.Context, roomID string, q *dto.AvailabilityQuery) (*dto.AvailabilityResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.room.check_availability")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", roomID))

	if q == nil {
		return nil, domain.NewValidationError("check_in", "is required")
	}
	stay, err := domain.NewDateRange(q.CheckIn, q.CheckOut)
	if err != nil {
		span.SetStatus(codes.Error, "invalid dates")
		return nil, err
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	available := room.Available
	if available {
		available, err = s.availability.IsAvailable(ctx, room.ID, stay)
		if err != nil {
			telemetry.Fail(span, err)
			return nil, err
		}
	}

	span.SetStatus(codes.Ok, "")
	return &dto.AvailabilityResponse{
		RoomID:     room.ID,
		CheckIn:    domain.FormatDate(stay.CheckIn),
		CheckOut:   domain.FormatDate(stay.CheckOut),
		Available:  available,
		Nights:     stay.Nights(),
		TotalPrice: domain.CalculateTotal(stay.Nights(), room.Price),
	}, nil
}

func (s *roomService) CreateRoom(ctx context.Context, req *dto.CreateRoomRequest) (*dto.RoomResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.room.create")
	defer span.End()

	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}

	now := s.now()
	room := &domain.Room{
		ID:          uuid.New().String(),
		Number:      strings.TrimSpace(req.Number),
		Name:        strings.TrimSpace(req.Name),
		Type:        strings.ToLower(strings.TrimSpace(req.Type)),
		Description: req.Description,
		Price:       domain.RoundCents(req.Price),
		Capacity:    req.Capacity,
		Amenities:   req.Amenities,
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Available != nil {
		room.Available = *req.Available
	}
	if err := room.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid room")
		return nil, err
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("room_id", room.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromRoom(room), nil
}

func (s *roomService) UpdateRoom(ctx context.Context, roomID string, req *dto.UpdateRoomRequest) (*dto.RoomResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.room.update")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", roomID))

	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	req.Apply(room)
	room.Type = strings.ToLower(strings.TrimSpace(room.Type))
	room.Price = domain.RoundCents(room.Price)
	room.UpdatedAt = s.now()
	if err := room.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid room")
		return nil, err
	}

	if err := s.roomRepo.Update(ctx, room); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromRoom(room), nil
}

func (s *roomService) DeleteRoom(ctx context.Context, roomID string) error {
	closed := false
	_, err := s.UpdateRoom(ctx, roomID, &dto.UpdateRoomRequest{Available: &closed})
	return err
}
