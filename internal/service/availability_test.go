package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/repository"
)

func TestAvailabilityChecker_IsAvailable(t *testing.T) {
	f := newFixture()
	room := f.seedRoom(t, 100)
	other := f.seedRoom(t, 100)
	f.seedBooking(t, room.ID, "someone", "2025-07-01", "2025-07-05")

	cancelled := f.seedBooking(t, room.ID, "someone", "2025-08-01", "2025-08-05")
	require.NoError(t, f.bookingRepo.UpdateStatus(context.Background(), cancelled.ID,
		domain.BookingStatusConfirmed, domain.BookingStatusCancelled, cancelled.CreatedAt))

	tests := []struct {
		name      string
		roomID    string
		in, out   string
		available bool
	}{
		{"overlaps tail", room.ID, "2025-07-04", "2025-07-06", false},
		{"inside", room.ID, "2025-07-02", "2025-07-03", false},
		{"covers", room.ID, "2025-06-30", "2025-07-06", false},
		{"starts at check-out", room.ID, "2025-07-05", "2025-07-08", true},
		{"ends at check-in", room.ID, "2025-06-28", "2025-07-01", true},
		{"other room", other.ID, "2025-07-02", "2025-07-03", true},
		{"cancelled booking ignored", room.ID, "2025-08-02", "2025-08-03", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stay, err := domain.NewDateRange(tt.in, tt.out)
			require.NoError(t, err)

			got, err := f.availability.IsAvailable(context.Background(), tt.roomID, stay)
			require.NoError(t, err)
			assert.Equal(t, tt.available, got)
		})
	}
}

func TestAvailabilityChecker_IsAvailableExcluding(t *testing.T) {
	f := newFixture()
	room := f.seedRoom(t, 100)
	b := f.seedBooking(t, room.ID, "someone", "2025-07-01", "2025-07-05")

	stay, err := domain.NewDateRange("2025-07-03", "2025-07-07")
	require.NoError(t, err)

	got, err := f.availability.IsAvailableExcluding(context.Background(), room.ID, stay, b.ID)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = f.availability.IsAvailable(context.Background(), room.ID, stay)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestAvailabilityChecker_InvalidRange(t *testing.T) {
	f := newFixture()
	stay := domain.DateRange{
		CheckIn:  time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC),
	}
	_, err := f.availability.IsAvailable(context.Background(), "room-1", stay)
	assert.True(t, domain.IsValidationError(err))
}

// failingBookingRepo fails every overlap query
type failingBookingRepo struct {
	repository.BookingRepository
}

func (failingBookingRepo) FindOverlapping(context.Context, string, domain.DateRange, []domain.BookingStatus, string) ([]*domain.Booking, error) {
	return nil, errors.New("connection refused")
}

func TestAvailabilityChecker_StoreError(t *testing.T) {
	checker := NewAvailabilityChecker(failingBookingRepo{})
	stay, err := domain.NewDateRange("2025-07-01", "2025-07-02")
	require.NoError(t, err)

	_, err = checker.IsAvailable(context.Background(), "room-1", stay)
	assert.ErrorContains(t, err, "connection refused")
}
