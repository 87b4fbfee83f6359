package repository

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

const roomColumns = `id, number, name, type, description, price, capacity, amenities, available, created_at, updated_at`

// PostgresRoomRepository implements RoomRepository on PostgreSQL
type PostgresRoomRepository struct {
	db DBTX
}

func NewPostgresRoomRepository(db DBTX) *PostgresRoomRepository {
	return &PostgresRoomRepository{db: db}
}

func scanRoom(row scanner) (*domain.Room, error) {
	room := &domain.Room{}
	err := row.Scan(
		&room.ID,
		&room.Number,
		&room.Name,
		&room.Type,
		&room.Description,
		&room.Price,
		&room.Capacity,
		&room.Amenities,
		&room.Available,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if room.Amenities == nil {
		room.Amenities = []string{}
	}
	return room, nil
}

func (r *PostgresRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.create")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", room.ID))

	query := `INSERT INTO rooms (` + roomColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		room.ID, room.Number, room.Name, room.Type, room.Description,
		room.Price, room.Capacity, nonNil(room.Amenities), room.Available,
		room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			span.SetStatus(codes.Error, "duplicate room number")
			return domain.ErrRoomNumberTaken
		}
		telemetry.Fail(span, err)
		return fmt.Errorf("failed to create room: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *PostgresRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", id))

	room, err := scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id::text = $1`, id))
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.NewNotFound("room", id)
		}
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return room, nil
}

func (r *PostgresRoomRepository) List(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.list")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.MinCapacity > 0 {
		add("capacity >= $%d", filter.MinCapacity)
	}
	if filter.OnlyAvailable {
		where = append(where, "available")
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY number LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			telemetry.Fail(span, err)
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return rooms, nil
}

func (r *PostgresRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.room.update")
	defer span.End()
	span.SetAttributes(attribute.String("room_id", room.ID))

	query := `
		UPDATE rooms
		SET number = $2, name = $3, type = $4, description = $5, price = $6,
		    capacity = $7, amenities = $8, available = $9, updated_at = $10
		WHERE id::text = $1
	`

	tag, err := r.db.Exec(ctx, query,
		room.ID, room.Number, room.Name, room.Type, room.Description,
		room.Price, room.Capacity, nonNil(room.Amenities), room.Available, room.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			span.SetStatus(codes.Error, "duplicate room number")
			return domain.ErrRoomNumberTaken
		}
		telemetry.Fail(span, err)
		return fmt.Errorf("failed to update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.NewNotFound("room", room.ID)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
