package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/kafka"
	"github.com/anoirbs/hotel-sub000/pkg/retry"
)

// fakeConsumer hands out its batches once, then blocks until ctx is done
type fakeConsumer struct {
	mu        sync.Mutex
	batches   [][]*kafka.Record
	committed []*kafka.Record
}

func (c *fakeConsumer) Poll(ctx context.Context) ([]*kafka.Record, error) {
	c.mu.Lock()
	if len(c.batches) > 0 {
		b := c.batches[0]
		c.batches = c.batches[1:]
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConsumer) CommitRecords(_ context.Context, records []*kafka.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, records...)
	return nil
}

func (c *fakeConsumer) Committed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.committed)
}

type recordingDLQ struct {
	mu   sync.Mutex
	msgs []*retry.DLQMessage
}

func (p *recordingDLQ) PublishToDLQ(_ context.Context, msg *retry.DLQMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

// flakyDLQ rejects the first Failures publishes
type flakyDLQ struct {
	recordingDLQ
	Failures int
	attempts int
}

func (p *flakyDLQ) PublishToDLQ(ctx context.Context, msg *retry.DLQMessage) error {
	p.mu.Lock()
	p.attempts++
	failing := p.attempts <= p.Failures
	p.mu.Unlock()
	if failing {
		return errors.New("kafka down")
	}
	return p.recordingDLQ.PublishToDLQ(ctx, msg)
}

func (p *flakyDLQ) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

// flakyRefunder fails the first Failures calls
type flakyRefunder struct {
	mu       sync.Mutex
	Failures int
	calls    int
	keys     []string
}

func (r *flakyRefunder) Refund(_ context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.keys = append(r.keys, req.IdempotencyKey)
	if r.calls <= r.Failures {
		return nil, errors.New("provider timeout")
	}
	return &gateway.RefundResult{ID: "re_1", Status: "succeeded"}, nil
}

func fastRetry(maxRetries int) *retry.Config {
	return &retry.Config{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func refundRecord(t *testing.T, offset int64, ref string) *kafka.Record {
	t.Helper()
	value, err := json.Marshal(&domain.RefundRequest{
		EventID:          "evt-" + ref,
		PaymentReference: ref,
		Amount:           300,
		Currency:         "usd",
		Reason:           "room_unavailable",
	})
	require.NoError(t, err)
	return &kafka.Record{
		Topic:   "booking.refund_required",
		Offset:  offset,
		Key:     []byte(ref),
		Value:   value,
		Headers: map[string]string{"event_id": "evt-" + ref},
	}
}

func TestRefundWorker_RefundsWithStableKey(t *testing.T) {
	gw := gateway.NewMockGateway(&gateway.MockGatewayConfig{})
	gw.Put(&gateway.Session{ID: "cs_1", PaymentStatus: gateway.PaymentStatusPaid, Status: "complete"})

	consumer := &fakeConsumer{batches: [][]*kafka.Record{
		{refundRecord(t, 1, "cs_1"), refundRecord(t, 2, "cs_1")},
	}}
	dlq := &recordingDLQ{}
	w := NewRefundWorker(consumer, gw, dlq, &RefundWorkerConfig{Retry: fastRetry(2)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return consumer.Committed() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// a redelivered request reuses the idempotency key, so only one refund exists
	assert.Equal(t, 1, gw.RefundCount())
	refunded, dead := w.Stats()
	assert.Equal(t, int64(2), refunded)
	assert.Zero(t, dead)
	assert.Empty(t, dlq.msgs)
}

func TestRefundWorker_RetriesTransientFailures(t *testing.T) {
	refunder := &flakyRefunder{Failures: 2}
	w := NewRefundWorker(&fakeConsumer{}, refunder, &recordingDLQ{}, &RefundWorkerConfig{Retry: fastRetry(3)})

	require.NoError(t, w.processRecord(context.Background(), refundRecord(t, 1, "cs_2")))
	assert.Equal(t, 3, refunder.calls)
	assert.Equal(t, []string{"refund-cs_2", "refund-cs_2", "refund-cs_2"}, refunder.keys)
}

func TestRefundWorker_DeadLetters(t *testing.T) {
	tests := []struct {
		name      string
		record    func(t *testing.T) *kafka.Record
		refunder  Refunder
		wantCalls int
	}{
		{
			name:      "retries exhausted",
			record:    func(t *testing.T) *kafka.Record { return refundRecord(t, 1, "cs_3") },
			refunder:  &flakyRefunder{Failures: 100},
			wantCalls: 3,
		},
		{
			name: "malformed payload",
			record: func(t *testing.T) *kafka.Record {
				return &kafka.Record{Topic: "booking.refund_required", Key: []byte("x"), Value: []byte("{not json")}
			},
			refunder: &flakyRefunder{},
		},
		{
			name:     "unknown session",
			record:   func(t *testing.T) *kafka.Record { return refundRecord(t, 1, "cs_missing") },
			refunder: gateway.NewMockGateway(&gateway.MockGatewayConfig{}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlq := &recordingDLQ{}
			w := NewRefundWorker(&fakeConsumer{}, tt.refunder, dlq, &RefundWorkerConfig{Retry: fastRetry(2)})

			err := w.processRecord(context.Background(), tt.record(t))
			require.Error(t, err)
			require.Len(t, dlq.msgs, 1)
			assert.Equal(t, "refund-worker", dlq.msgs[0].Source)

			if f, ok := tt.refunder.(*flakyRefunder); ok {
				assert.Equal(t, tt.wantCalls, f.calls)
			}
			_, dead := w.Stats()
			assert.Equal(t, int64(1), dead)
		})
	}
}

func TestRefundWorker_HoldsCommitUntilDeadLettered(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]*kafka.Record{{refundRecord(t, 7, "cs_4")}}}
	dlq := &flakyDLQ{Failures: 2}
	refunder := &flakyRefunder{Failures: 100}
	w := NewRefundWorker(consumer, refunder, dlq, &RefundWorkerConfig{
		Retry:       fastRetry(0),
		PollBackoff: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return dlq.Published() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return consumer.Committed() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, 3, dlq.attempts)
	assert.Equal(t, 3, refunder.calls)
	_, dead := w.Stats()
	assert.Equal(t, int64(1), dead)
}

func TestRefundWorker_DeadLetterOutageLeavesRecordUncommitted(t *testing.T) {
	consumer := &fakeConsumer{batches: [][]*kafka.Record{{refundRecord(t, 8, "cs_5")}}}
	dlq := &flakyDLQ{Failures: 1 << 30}
	w := NewRefundWorker(consumer, &flakyRefunder{Failures: 1 << 30}, dlq, &RefundWorkerConfig{
		Retry:       fastRetry(0),
		PollBackoff: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := w.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Zero(t, consumer.Committed())
	assert.Zero(t, dlq.Published())
	refunded, dead := w.Stats()
	assert.Zero(t, refunded)
	assert.Zero(t, dead)
}

func TestRefundIdempotencyKey(t *testing.T) {
	assert.Equal(t, "refund-cs_abc", RefundIdempotencyKey("cs_abc"))
}

func TestNewRefundWorker_Defaults(t *testing.T) {
	w := NewRefundWorker(&fakeConsumer{}, &flakyRefunder{}, nil, nil)
	assert.Equal(t, "booking.refund_required", w.config.Topic)
	assert.Equal(t, time.Second, w.config.PollBackoff)
	assert.NotNil(t, w.config.Retry)
}

// sweepFixture wires the sweeper to a real reconciler over memory stores
type sweepFixture struct {
	gw         *gateway.MockGateway
	bookings   *repository.MemoryBookingRepository
	reconciler service.Reconciler
	roomID     string
	sweeper    *SessionSweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	ctx := context.Background()
	bookings := repository.NewMemoryBookingRepository()
	rooms := repository.NewMemoryRoomRepository()
	gw := gateway.NewMockGateway(&gateway.MockGatewayConfig{})

	room := &domain.Room{ID: "room-1", Number: "101", Name: "Garden", Type: "double", Price: 100, Capacity: 2, Available: true}
	require.NoError(t, rooms.Create(ctx, room))

	availability := service.NewAvailabilityChecker(bookings)
	reconciler := service.NewReconciler(bookings, rooms, availability, gw, nil, nil)
	return &sweepFixture{
		gw:         gw,
		bookings:   bookings,
		reconciler: reconciler,
		roomID:     room.ID,
		sweeper:    NewSessionSweeper(gw, bookings, reconciler, &SessionSweeperConfig{ScanInterval: time.Hour}),
	}
}

func (f *sweepFixture) paidSession(t *testing.T, userID, in, out string, paid bool) string {
	t.Helper()
	s, err := f.gw.CreateCheckoutSession(context.Background(), &gateway.CheckoutRequest{
		Metadata: gateway.BookingMetadata{
			RoomID: f.roomID, UserID: userID, CheckIn: in, CheckOut: out,
			GuestName: "Guest", GuestEmail: "guest@example.com",
		},
		ProductName:  "Garden",
		NightlyPrice: 100,
		Nights:       2,
		Currency:     "usd",
	})
	require.NoError(t, err)
	if paid {
		require.NoError(t, f.gw.MarkPaid(s.ID))
	}
	return s.ID
}

func TestSessionSweeper_ConfirmsOrphanedPayments(t *testing.T) {
	f := newSweepFixture(t)
	ref := f.paidSession(t, "user-1", "2031-02-01", "2031-02-03", true)
	f.paidSession(t, "user-2", "2031-03-01", "2031-03-03", false)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Confirmed)

	b, err := f.bookings.FindByPaymentReference(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "user-1", b.UserID)

	res, err = f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Confirmed)
}

func TestSessionSweeper_CountsConflicts(t *testing.T) {
	f := newSweepFixture(t)
	f.paidSession(t, "user-1", "2031-04-01", "2031-04-04", true)
	f.paidSession(t, "user-2", "2031-04-02", "2031-04-05", true)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Confirmed)
	assert.Equal(t, 1, res.Conflicts)
}

// putPaid stores a completed session created at the given time
func (f *sweepFixture) putPaid(id string, createdAt time.Time, in, out string) {
	f.gw.Put(&gateway.Session{
		ID:            id,
		Status:        "complete",
		PaymentStatus: gateway.PaymentStatusPaid,
		Metadata: gateway.BookingMetadata{
			RoomID: f.roomID, UserID: "user-" + id, CheckIn: in, CheckOut: out,
			GuestName: "Guest", GuestEmail: "guest@example.com",
		}.ToMap(),
		CreatedAt: createdAt,
	})
}

func TestSessionSweeper_ReachesOrphansBehindBookedSessions(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	now := time.Now().UTC()

	orphans := []string{"cs_orphan_0", "cs_orphan_1"}
	f.putPaid(orphans[0], now.Add(-3*time.Hour), "2031-08-01", "2031-08-03")
	f.putPaid(orphans[1], now.Add(-2*time.Hour), "2031-08-05", "2031-08-07")

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("cs_booked_%d", i)
		in := time.Date(2032, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		f.putPaid(id, now.Add(-time.Duration(i+1)*time.Minute), in.Format("2006-01-02"), in.AddDate(0, 0, 2).Format("2006-01-02"))
		require.NoError(t, f.bookings.Insert(ctx, &domain.Booking{
			ID: "b-" + id, RoomID: f.roomID, UserID: "user-" + id,
			CheckIn: in, CheckOut: in.AddDate(0, 0, 2),
			Status: domain.BookingStatusConfirmed, PaymentReference: id,
		}))
	}

	sweeper := NewSessionSweeper(f.gw, f.bookings, f.reconciler, &SessionSweeperConfig{BatchSize: 2})
	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Scanned)
	assert.Equal(t, 2, res.Confirmed)

	for _, ref := range orphans {
		b, err := f.bookings.FindByPaymentReference(ctx, ref)
		require.NoError(t, err)
		assert.NotNil(t, b, ref)
	}
}

type failingLister struct{}

func (failingLister) ListSessions(context.Context, gateway.ListSessionsParams) ([]*gateway.Session, error) {
	return nil, errors.New("provider down")
}

func TestSessionSweeper_ListFailure(t *testing.T) {
	s := NewSessionSweeper(failingLister{}, repository.NewMemoryBookingRepository(), nil, nil)
	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSessionSweeper_StartStop(t *testing.T) {
	f := newSweepFixture(t)
	ref := f.paidSession(t, "user-1", "2031-05-01", "2031-05-02", true)

	require.NoError(t, f.sweeper.Start(context.Background()))
	assert.Error(t, f.sweeper.Start(context.Background()))

	require.Eventually(t, func() bool {
		b, _ := f.bookings.FindByPaymentReference(context.Background(), ref)
		return b != nil
	}, 2*time.Second, 5*time.Millisecond)

	f.sweeper.Stop()
	f.sweeper.Stop()
}

func TestNewSessionSweeper_Defaults(t *testing.T) {
	s := NewSessionSweeper(failingLister{}, repository.NewMemoryBookingRepository(), nil, nil)
	assert.Equal(t, 5*time.Minute, s.config.ScanInterval)
	assert.Equal(t, 100, s.config.BatchSize)
	assert.Equal(t, 48*time.Hour, s.config.Lookback)
}
