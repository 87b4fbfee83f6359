package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookingRepository is the booking store. Implementations must reject a
// second booking with the same payment reference (ErrDuplicateKey) and an
// active booking overlapping another on the same room (ErrRoomUnavailable).
type BookingRepository interface {
	// FindByPaymentReference returns nil, nil when no booking has ref
	FindByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error)
	Insert(ctx context.Context, booking *domain.Booking) error
	// FindOverlapping returns bookings of roomID intersecting r, skipping the
	// given statuses and excludeBookingID
	FindOverlapping(ctx context.Context, roomID string, r domain.DateRange, excludeStatuses []domain.BookingStatus, excludeBookingID string) ([]*domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, error)
	// UpdateStatus moves id from one status to another, returning
	// ErrInvalidTransition when the booking is no longer in from
	UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) error
	UpdateDates(ctx context.Context, id string, r domain.DateRange, totalPrice float64, at time.Time) error
}

// RoomRepository stores rooms
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	List(ctx context.Context, filter domain.RoomFilter) ([]*domain.Room, error)
	Update(ctx context.Context, room *domain.Room) error
}

// UserRepository stores accounts
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
