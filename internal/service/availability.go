package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// AvailabilityChecker answers whether a room is free for a stay. It never writes.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, roomID string, r domain.DateRange) (bool, error)
	// IsAvailableExcluding ignores bookingID, for moving a booking within its own stay
	IsAvailableExcluding(ctx context.Context, roomID string, r domain.DateRange, bookingID string) (bool, error)
}

type availabilityChecker struct {
	bookingRepo repository.BookingRepository
}

// NewAvailabilityChecker creates a checker over the booking store
func NewAvailabilityChecker(bookingRepo repository.BookingRepository) AvailabilityChecker {
	return &availabilityChecker{bookingRepo: bookingRepo}
}

var inactiveStatuses = []domain.BookingStatus{domain.BookingStatusCancelled}

func (c *availabilityChecker) IsAvailable(ctx context.Context, roomID string, r domain.DateRange) (bool, error) {
	return c.IsAvailableExcluding(ctx, roomID, r, "")
}

func (c *availabilityChecker) IsAvailableExcluding(ctx context.Context, roomID string, r domain.DateRange, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.availability.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("room_id", roomID),
		attribute.String("stay", r.String()),
	)

	if err := r.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid range")
		return false, err
	}

	overlapping, err := c.bookingRepo.FindOverlapping(ctx, roomID, r, inactiveStatuses, bookingID)
	if err != nil {
		telemetry.Fail(span, err)
		return false, fmt.Errorf("failed to check availability: %w", err)
	}

	available := len(overlapping) == 0
	span.SetAttributes(attribute.Bool("available", available))
	span.SetStatus(codes.Ok, "")
	return available, nil
}
