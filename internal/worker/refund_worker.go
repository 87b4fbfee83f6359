package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/pkg/kafka"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/retry"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// RecordConsumer is satisfied by *kafka.Consumer
type RecordConsumer interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// Refunder is the part of gateway.PaymentGateway the worker needs
type Refunder interface {
	Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error)
}

// RefundWorkerConfig contains configuration for the refund worker
type RefundWorkerConfig struct {
	Topic string
	Retry *retry.Config
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// DefaultRefundWorkerConfig returns default configuration
func DefaultRefundWorkerConfig() *RefundWorkerConfig {
	return &RefundWorkerConfig{
		Topic:       "booking.refund_required",
		Retry:       retry.DefaultConfig(),
		PollBackoff: time.Second,
	}
}

// RefundWorker refunds charges whose booking lost its room. Each refund is
// retried with backoff; a refund that keeps failing is dead-lettered for
// manual follow-up.
type RefundWorker struct {
	consumer RecordConsumer
	refunder Refunder
	dlq      *retry.DLQHandler
	config   *RefundWorkerConfig
	log      *logger.Logger

	mu           sync.Mutex
	refunded     int64
	deadLettered int64
}

// NewRefundWorker creates a new refund worker. dlqPublisher may be nil.
func NewRefundWorker(
	consumer RecordConsumer,
	refunder Refunder,
	dlqPublisher retry.DLQPublisher,
	config *RefundWorkerConfig,
) *RefundWorker {
	defaults := DefaultRefundWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.PollBackoff <= 0 {
		config.PollBackoff = defaults.PollBackoff
	}

	w := &RefundWorker{
		consumer: consumer,
		refunder: refunder,
		config:   config,
		log:      logger.Get().With(zap.String("worker", "refund")),
	}
	w.dlq = retry.NewDLQHandler(config.Retry, dlqPublisher, "refund-worker", func(msg *retry.DLQMessage) {
		w.log.Error("refund moved to dead letter queue",
			zap.String("payment_reference", msg.OriginalKey),
			zap.Int("attempts", msg.Attempts),
			zap.String("error", msg.Error),
		)
	})
	return w
}

// Start polls until ctx is done. Records are processed in order and
// committed only once refunded or dead-lettered.
func (w *RefundWorker) Start(ctx context.Context) error {
	w.log.Info("starting refund worker", zap.String("topic", w.config.Topic))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		records, err := w.consumer.Poll(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrClientClosed) || ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("failed to poll refund requests", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.PollBackoff):
			}
			continue
		}

		for _, record := range records {
			if err := w.handleRecord(ctx, record); err != nil {
				// left uncommitted so the next member picks it up
				return err
			}
			if err := w.consumer.CommitRecords(ctx, []*kafka.Record{record}); err != nil {
				w.log.Error("failed to commit refund request", zap.Int64("offset", record.Offset), zap.Error(err))
			}
		}
	}
}

// handleRecord processes record until it is refunded or dead-lettered. A
// failed dead-letter publish retries the whole record after PollBackoff; the
// refund idempotency key keeps a repeated attempt from refunding twice. It returns an
// error only when ctx ends first.
func (w *RefundWorker) handleRecord(ctx context.Context, record *kafka.Record) error {
	for {
		err := w.processRecord(ctx, record)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, retry.ErrContextCanceled) || ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, retry.ErrDLQPublishFailed):
			w.log.Error("failed to dead-letter refund request, retrying",
				zap.Int64("offset", record.Offset),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.PollBackoff):
			}
		default:
			w.log.Error("failed to process refund request",
				zap.Int64("offset", record.Offset),
				zap.Error(err),
			)
			return nil
		}
	}
}

// processRecord refunds one request. It returns the final error once the
// request was dead-lettered, or an error wrapping retry.ErrDLQPublishFailed
// when it could not be.
func (w *RefundWorker) processRecord(ctx context.Context, record *kafka.Record) error {
	ctx, span := telemetry.StartSpan(ctx, "worker.refund.process")
	defer span.End()

	msgCtx := &retry.MessageContext{
		ID:       record.Headers["event_id"],
		Topic:    record.Topic,
		Key:      string(record.Key),
		Payload:  json.RawMessage(record.Value),
		Metadata: map[string]string{"offset": fmt.Sprintf("%d/%d", record.Partition, record.Offset)},
	}

	var req domain.RefundRequest
	decodeErr := json.Unmarshal(record.Value, &req)
	if decodeErr == nil && req.PaymentReference == "" {
		decodeErr = errors.New("refund request has no payment reference")
	}
	span.SetAttributes(attribute.String("payment_reference", req.PaymentReference))

	err := w.dlq.Process(ctx, msgCtx, func(ctx context.Context) error {
		if decodeErr != nil {
			return retry.Permanent(fmt.Errorf("malformed refund request: %w", decodeErr))
		}
		return w.refund(ctx, &req)
	})
	if err != nil {
		telemetry.Fail(span, err)
		if !errors.Is(err, retry.ErrContextCanceled) && !errors.Is(err, retry.ErrDLQPublishFailed) {
			w.record(ctx, metrics.OutcomeDeadLetter)
		}
		return err
	}
	w.record(ctx, metrics.OutcomeSucceeded)
	return nil
}

func (w *RefundWorker) refund(ctx context.Context, req *domain.RefundRequest) error {
	result, err := w.refunder.Refund(ctx, &gateway.RefundRequest{
		SessionID:       req.PaymentReference,
		PaymentIntentID: req.PaymentIntentID,
		Reason:          req.Reason,
		IdempotencyKey:  RefundIdempotencyKey(req.PaymentReference),
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionNotFound) {
			return retry.Permanent(err)
		}
		w.log.Warn("refund attempt failed",
			zap.String("payment_reference", req.PaymentReference),
			zap.Error(err),
		)
		return err
	}

	w.log.Info("refund issued",
		zap.String("payment_reference", req.PaymentReference),
		zap.String("refund_id", result.ID),
		zap.String("status", result.Status),
		zap.Float64("amount", req.Amount),
		zap.String("currency", req.Currency),
	)
	return nil
}

func (w *RefundWorker) record(ctx context.Context, outcome string) {
	metrics.RefundsProcessed.Inc(ctx, metrics.Outcome(outcome))

	w.mu.Lock()
	defer w.mu.Unlock()
	if outcome == metrics.OutcomeSucceeded {
		w.refunded++
	} else {
		w.deadLettered++
	}
}

// Stats returns refunds issued and dead-lettered so far
func (w *RefundWorker) Stats() (refunded, deadLettered int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refunded, w.deadLettered
}

// RefundIdempotencyKey is the provider idempotency key for a payment's
// refund, so redelivered requests never refund twice
func RefundIdempotencyKey(paymentReference string) string {
	return "refund-" + paymentReference
}
