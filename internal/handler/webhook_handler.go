package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookHandler confirms bookings from Stripe checkout events, covering
// customers who paid but never came back to call confirm
type WebhookHandler struct {
	reconciler    service.Reconciler
	webhookSecret string
}

func NewWebhookHandler(reconciler service.Reconciler, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.stripe")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)
	log := logger.Get()

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		telemetry.Fail(span, err)
		log.WarnContext(ctx, "failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		log.WarnContext(ctx, "missing Stripe-Signature header")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe-Signature header"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		telemetry.Fail(span, err)
		log.WarnContext(ctx, "invalid webhook signature", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("event_type", string(event.Type)),
	)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		h.handleCheckoutPaid(c, event)
	default:
		log.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		c.JSON(http.StatusOK, gin.H{"received": true, "message": "event type not handled"})
	}
}

func (h *WebhookHandler) handleCheckoutPaid(c *gin.Context, event stripe.Event) {
	ctx := c.Request.Context()
	log := logger.Get().With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.ErrorContext(ctx, "failed to parse checkout session", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse event data"})
		return
	}

	// delayed payment methods complete the session before the money arrives;
	// async_payment_succeeded follows
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.InfoContext(ctx, "checkout session not paid yet",
			zap.String("session_reference", session.ID),
			zap.String("payment_status", string(session.PaymentStatus)),
		)
		c.JSON(http.StatusOK, gin.H{"received": true, "message": "awaiting payment"})
		return
	}

	result, err := h.reconciler.ConfirmFromProvider(ctx, session.ID)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			log.WarnContext(ctx, "paid session lost its room",
				zap.String("session_reference", session.ID),
				zap.Bool("refund_required", conflict.RefundRequired),
			)
			c.JSON(http.StatusOK, gin.H{"received": true, "refund_required": conflict.RefundRequired})
		case domain.IsPaymentIncomplete(err), domain.IsValidationError(err), domain.IsNotFoundError(err):
			// redelivery cannot change the outcome
			log.WarnContext(ctx, "checkout session not confirmable",
				zap.String("session_reference", session.ID),
				zap.Error(err),
			)
			c.JSON(http.StatusOK, gin.H{"received": true, "message": err.Error()})
		default:
			log.ErrorContext(ctx, "webhook confirmation failed",
				zap.String("session_reference", session.ID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
		}
		return
	}

	log.InfoContext(ctx, "booking confirmed from webhook",
		zap.String("session_reference", session.ID),
		zap.String("booking_id", result.Booking.ID),
		zap.Bool("created", result.Created),
	)
	c.JSON(http.StatusOK, gin.H{"received": true, "booking_id": result.Booking.ID})
}
