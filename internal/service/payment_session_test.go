package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
)

func checkoutRequest(roomID, in, out string) *dto.CheckoutRequest {
	return &dto.CheckoutRequest{
		RoomID:     roomID,
		CheckIn:    in,
		CheckOut:   out,
		GuestName:  "Ada Lovelace",
		GuestEmail: "ada@example.com",
	}
}

func (f *fixture) payments(gw gateway.PaymentGateway, cfg *PaymentSessionConfig) PaymentSessionService {
	if gw == nil {
		gw = f.gateway
	}
	if cfg == nil {
		cfg = &PaymentSessionConfig{
			Currency:   "USD",
			SuccessURL: "https://hotel.test/success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:  "https://hotel.test/cancel",
		}
	}
	return NewPaymentSessionService(f.roomRepo, f.availability, gw, cfg)
}

func TestCreatePaymentSession_Success(t *testing.T) {
	f := newFixture()
	room := f.seedRoom(t, 100)

	resp, err := f.payments(nil, nil).CreatePaymentSession(context.Background(), "user-1",
		checkoutRequest(room.ID, "2025-06-01", "2025-06-04"))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Nights)
	assert.Equal(t, 300.0, resp.TotalPrice)
	assert.Equal(t, "usd", resp.Currency)
	assert.Equal(t, "2025-06-01", resp.CheckIn)
	assert.Contains(t, resp.RedirectURL, resp.SessionReference)

	s, err := f.gateway.GetSession(context.Background(), resp.SessionReference)
	require.NoError(t, err)
	assert.False(t, s.IsPaid())
	assert.Equal(t, int64(30000), s.AmountTotal)
	assert.Equal(t, "user-1", s.Metadata["user_id"])
	assert.Equal(t, room.ID, s.Metadata["room_id"])
	assert.Equal(t, "300.00", s.Metadata["total_price"])

	assert.Equal(t, 0, f.countBookings(t), "checkout never books")
}

func TestCreatePaymentSession_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) *dto.CheckoutRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown room",
			setup: func(f *fixture) *dto.CheckoutRequest {
				return checkoutRequest("no-such-room", "2025-06-01", "2025-06-04")
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrRoomNotFound) },
		},
		{
			name: "room closed",
			setup: func(f *fixture) *dto.CheckoutRequest {
				room := f.seedRoom(t, 100)
				room.Available = false
				require.NoError(t, f.roomRepo.Update(context.Background(), room))
				return checkoutRequest(room.ID, "2025-06-01", "2025-06-04")
			},
			check: func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) },
		},
		{
			name: "check-out before check-in",
			setup: func(f *fixture) *dto.CheckoutRequest {
				return checkoutRequest(f.seedRoom(t, 100).ID, "2025-06-04", "2025-06-01")
			},
			check: func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) },
		},
		{
			name: "same day",
			setup: func(f *fixture) *dto.CheckoutRequest {
				return checkoutRequest(f.seedRoom(t, 100).ID, "2025-06-04", "2025-06-04")
			},
			check: func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) },
		},
		{
			name: "stay too long",
			setup: func(f *fixture) *dto.CheckoutRequest {
				return checkoutRequest(f.seedRoom(t, 100).ID, "2025-06-01", "2025-08-01")
			},
			check: func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) },
		},
		{
			name: "room already booked",
			setup: func(f *fixture) *dto.CheckoutRequest {
				room := f.seedRoom(t, 100)
				f.seedBooking(t, room.ID, "someone", "2025-07-01", "2025-07-05")
				return checkoutRequest(room.ID, "2025-07-04", "2025-07-06")
			},
			check: func(t *testing.T, err error) {
				var conflict *domain.ConflictError
				require.ErrorAs(t, err, &conflict)
				assert.False(t, conflict.RefundRequired)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := tt.setup(f)
			resp, err := f.payments(nil, nil).CreatePaymentSession(context.Background(), "user-1", req)
			assert.Nil(t, resp)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCreatePaymentSession_ProviderErrors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		f := newFixture()
		room := f.seedRoom(t, 100)
		gw := &mockGateway{
			CreateCheckoutSessionFunc: func(context.Context, *gateway.CheckoutRequest) (*gateway.Session, error) {
				return nil, errors.New("invalid api key")
			},
		}

		_, err := f.payments(gw, nil).CreatePaymentSession(context.Background(), "user-1",
			checkoutRequest(room.ID, "2025-06-01", "2025-06-04"))
		assert.True(t, domain.IsExternalServiceError(err))
	})

	t.Run("provider timeout", func(t *testing.T) {
		f := newFixture()
		room := f.seedRoom(t, 100)
		gw := &mockGateway{
			CreateCheckoutSessionFunc: func(ctx context.Context, _ *gateway.CheckoutRequest) (*gateway.Session, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}

		_, err := f.payments(gw, &PaymentSessionConfig{Timeout: 20 * time.Millisecond}).
			CreatePaymentSession(context.Background(), "user-1", checkoutRequest(room.ID, "2025-06-01", "2025-06-04"))
		assert.True(t, domain.IsExternalServiceError(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("request carries metadata and minor units", func(t *testing.T) {
		f := newFixture()
		room := f.seedRoom(t, 99.99)
		var got *gateway.CheckoutRequest
		gw := &mockGateway{
			CreateCheckoutSessionFunc: func(_ context.Context, req *gateway.CheckoutRequest) (*gateway.Session, error) {
				got = req
				return &gateway.Session{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
			},
		}

		resp, err := f.payments(gw, nil).CreatePaymentSession(context.Background(), "user-1",
			checkoutRequest(room.ID, "2025-06-01", "2025-06-03"))
		require.NoError(t, err)
		assert.Equal(t, "cs_test_1", resp.SessionReference)
		assert.Equal(t, 199.98, resp.TotalPrice)

		require.NotNil(t, got)
		assert.Equal(t, 2, got.Nights)
		assert.Equal(t, 99.99, got.NightlyPrice)
		assert.Equal(t, "user-1", got.Metadata.UserID)
		assert.Equal(t, "ada@example.com", got.CustomerEmail)
	})
}

func TestCreatePaymentSession_RequiresUser(t *testing.T) {
	f := newFixture()
	room := f.seedRoom(t, 100)
	_, err := f.payments(nil, nil).CreatePaymentSession(context.Background(), "", checkoutRequest(room.ID, "2025-06-01", "2025-06-04"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
