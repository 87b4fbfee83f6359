package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// SessionLister is the part of gateway.PaymentGateway the sweeper needs
type SessionLister interface {
	ListSessions(ctx context.Context, params gateway.ListSessionsParams) ([]*gateway.Session, error)
}

// BookingLookup is satisfied by repository.BookingRepository
type BookingLookup interface {
	FindByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error)
}

// SessionSweeperConfig contains configuration for the session sweeper
type SessionSweeperConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize is the page size used when listing provider sessions
	BatchSize int
	// Lookback is how far back sessions are considered. Provider sessions
	// expire after a day, so anything older was already swept or abandoned.
	Lookback time.Duration
}

// DefaultSessionSweeperConfig returns default configuration
func DefaultSessionSweeperConfig() *SessionSweeperConfig {
	return &SessionSweeperConfig{
		ScanInterval: 5 * time.Minute,
		BatchSize:    100,
		Lookback:     48 * time.Hour,
	}
}

// SweepResult summarises one sweep
type SweepResult struct {
	Scanned   int
	Confirmed int
	Conflicts int
	Failed    int
}

// SessionSweeper confirms paid sessions whose customer never called confirm
type SessionSweeper struct {
	sessions   SessionLister
	bookings   BookingLookup
	reconciler service.Reconciler
	config     *SessionSweeperConfig
	log        *logger.Logger
	now        func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSessionSweeper creates a new session sweeper
func NewSessionSweeper(
	sessions SessionLister,
	bookings BookingLookup,
	reconciler service.Reconciler,
	config *SessionSweeperConfig,
) *SessionSweeper {
	defaults := DefaultSessionSweeperConfig()
	if config == nil {
		config = defaults
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}

	return &SessionSweeper{
		sessions:   sessions,
		bookings:   bookings,
		reconciler: reconciler,
		config:     config,
		log:        logger.Get().With(zap.String("worker", "session_sweeper")),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start sweeps immediately and then every ScanInterval until ctx is done or Stop is called
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session sweeper already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting session sweeper", zap.Duration("interval", s.config.ScanInterval))

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop stops the sweeper and waits for an in-flight sweep
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("session sweeper stopped")
}

func (s *SessionSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	s.sweepLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepLogged(ctx)
		}
	}
}

func (s *SessionSweeper) sweepLogged(ctx context.Context) {
	res, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("session sweep failed", zap.Error(err))
		return
	}
	if res.Confirmed > 0 || res.Conflicts > 0 || res.Failed > 0 {
		s.log.Info("session sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("confirmed", res.Confirmed),
			zap.Int("conflicts", res.Conflicts),
			zap.Int("failed", res.Failed),
		)
	}
}

// Sweep runs one pass over every paid session inside the lookback window,
// reading it page by page
func (s *SessionSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "worker.session_sweeper.sweep")
	defer span.End()

	params := gateway.ListSessionsParams{
		CreatedAfter: s.now().Add(-s.config.Lookback),
		Limit:        s.config.BatchSize,
	}
	res := &SweepResult{}
	for {
		page, err := s.sessions.ListSessions(ctx, params)
		if err != nil {
			telemetry.Fail(span, err)
			return res, fmt.Errorf("failed to list checkout sessions: %w", err)
		}
		for _, sess := range page {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.sweepSession(ctx, sess, res)
		}
		if len(page) < params.Limit {
			break
		}
		params.StartingAfter = page[len(page)-1].ID
	}

	span.SetAttributes(
		attribute.Int("scanned", res.Scanned),
		attribute.Int("confirmed", res.Confirmed),
		attribute.Int("conflicts", res.Conflicts),
	)
	return res, nil
}

func (s *SessionSweeper) sweepSession(ctx context.Context, sess *gateway.Session, res *SweepResult) {
	if !sess.IsPaid() {
		return
	}
	res.Scanned++

	existing, err := s.bookings.FindByPaymentReference(ctx, sess.ID)
	if err != nil {
		res.Failed++
		s.log.Warn("failed to look up booking", zap.String("session_reference", sess.ID), zap.Error(err))
		return
	}
	if existing != nil {
		return
	}

	result, err := s.reconciler.ConfirmFromProvider(ctx, sess.ID)
	switch {
	case err == nil && result.Created:
		res.Confirmed++
		metrics.SessionsSwept.Inc(ctx, metrics.Outcome(metrics.OutcomeCreated))
		s.log.Info("confirmed orphaned payment",
			zap.String("session_reference", sess.ID),
			zap.String("booking_id", result.Booking.ID),
		)
	case err == nil:
		// confirmed concurrently by the customer or the webhook
	case domain.IsConflictError(err):
		res.Conflicts++
		metrics.SessionsSwept.Inc(ctx, metrics.Outcome(metrics.OutcomeConflict))
	default:
		res.Failed++
		metrics.SessionsSwept.Inc(ctx, metrics.Outcome(metrics.OutcomeFailed))
		s.log.Warn("failed to confirm orphaned payment", zap.String("session_reference", sess.ID), zap.Error(err))
	}
}
