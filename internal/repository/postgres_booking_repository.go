package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

const bookingColumns = `id, room_id, user_id, guest_name, guest_email, check_in, check_out,
	total_price, status, payment_reference, special_requests, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository on PostgreSQL.
// The schema enforces a unique payment_reference and a gist exclusion
// constraint on (room_id, daterange) for non-cancelled rows.
type PostgresBookingRepository struct {
	db DBTX
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db DBTX) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var status string
	err := row.Scan(
		&b.ID,
		&b.RoomID,
		&b.UserID,
		&b.GuestName,
		&b.GuestEmail,
		&b.CheckIn,
		&b.CheckOut,
		&b.TotalPrice,
		&status,
		&b.PaymentReference,
		&b.SpecialRequests,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.CheckIn = domain.NormalizeDate(b.CheckIn)
	b.CheckOut = domain.NormalizeDate(b.CheckOut)
	return b, nil
}

// FindByPaymentReference returns the booking created for ref, or nil
func (r *PostgresBookingRepository) FindByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.find_by_payment_reference")
	defer span.End()
	span.SetAttributes(attribute.String("payment_reference", ref))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_reference = $1`

	b, err := scanBooking(r.db.QueryRow(ctx, query, ref))
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Ok, "")
			return nil, nil
		}
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to find booking by payment reference: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return b, nil
}

// Insert stores a new booking
func (r *PostgresBookingRepository) Insert(ctx context.Context, b *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("room_id", b.RoomID),
		attribute.String("payment_reference", b.PaymentReference),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID,
		b.RoomID,
		b.UserID,
		b.GuestName,
		b.GuestEmail,
		b.CheckIn,
		b.CheckOut,
		b.TotalPrice,
		string(b.Status),
		b.PaymentReference,
		b.SpecialRequests,
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			span.SetStatus(codes.Error, "duplicate payment reference")
			return domain.ErrDuplicateKey
		case pgExclusionViolation:
			span.SetStatus(codes.Error, "overlapping booking")
			return domain.ErrRoomUnavailable
		}
		telemetry.Fail(span, err)
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// FindOverlapping uses the half-open test check_in < $to AND check_out > $from
func (r *PostgresBookingRepository) FindOverlapping(ctx context.Context, roomID string, dr domain.DateRange, excludeStatuses []domain.BookingStatus, excludeBookingID string) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.find_overlapping")
	defer span.End()
	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("range", dr.String()),
	)

	statuses := make([]string, 0, len(excludeStatuses))
	for _, s := range excludeStatuses {
		statuses = append(statuses, string(s))
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE room_id = $1
		  AND check_in < $3
		  AND check_out > $2
		  AND NOT (status = ANY($4))
		  AND id::text <> $5
		ORDER BY check_in
	`

	bookings, err := r.queryBookings(ctx, query, roomID, dr.CheckIn, dr.CheckOut, statuses, excludeBookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to find overlapping bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("overlaps", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id::text = $1`

	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.NewNotFound("booking", id)
		}
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return b, nil
}

// List returns bookings matching filter, newest first
func (r *PostgresBookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id::text = $%d", filter.UserID)
	}
	if filter.RoomID != "" {
		add("room_id::text = $%d", filter.RoomID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	bookings, err := r.queryBookings(ctx, query, args...)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// UpdateStatus performs a compare-and-set on status
func (r *PostgresBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)

	query := `UPDATE bookings SET status = $3, updated_at = $4 WHERE id::text = $1 AND status = $2`

	tag, err := r.db.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		telemetry.Fail(span, err)
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "status changed concurrently")
		return domain.ErrInvalidTransition
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateDates reschedules an active booking
func (r *PostgresBookingRepository) UpdateDates(ctx context.Context, id string, dr domain.DateRange, totalPrice float64, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update_dates")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", id),
		attribute.String("range", dr.String()),
	)

	query := `
		UPDATE bookings
		SET check_in = $2, check_out = $3, total_price = $4, updated_at = $5
		WHERE id::text = $1 AND status = 'confirmed'
	`

	tag, err := r.db.Exec(ctx, query, id, dr.CheckIn, dr.CheckOut, totalPrice, at)
	if err != nil {
		if pgErrorCode(err) == pgExclusionViolation {
			span.SetStatus(codes.Error, "overlapping booking")
			return domain.ErrRoomUnavailable
		}
		telemetry.Fail(span, err)
		return fmt.Errorf("failed to update booking dates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not updatable")
		return domain.ErrInvalidTransition
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *PostgresBookingRepository) queryBookings(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
