package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

// StripeGateway implements PaymentGateway with Stripe Checkout
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, used by tests
	BaseURL string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	stripe.Key = config.SecretKey

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: config.Timeout},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if config.BaseURL != "" {
		backendCfg.URL = stripe.String(config.BaseURL)
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	return &StripeGateway{config: config}, nil
}

func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateCheckoutSession creates a one-line-item payment session, one unit per night
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	metadata := req.Metadata.ToMap()
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
						Description: stripe.String(fmt.Sprintf("%s to %s",
							req.Metadata.CheckIn, req.Metadata.CheckOut)),
					},
					UnitAmount: stripe.Int64(domain.ToMinorUnits(req.NightlyPrice, req.Currency)),
				},
				Quantity: stripe.Int64(int64(req.Nights)),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Metadata.UserID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

// GetSession retrieves a checkout session by id
func (g *StripeGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(id, params)
	if err != nil {
		if isStripeNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get stripe checkout session: %w", err)
	}
	return fromStripeSession(s), nil
}

// ListSessions pages through completed sessions
func (g *StripeGateway) ListSessions(ctx context.Context, p ListSessionsParams) ([]*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	params := &stripe.CheckoutSessionListParams{
		Status: stripe.String(string(stripe.CheckoutSessionStatusComplete)),
	}
	if !p.CreatedAfter.IsZero() {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: p.CreatedAfter.Unix()}
	}
	params.Limit = stripe.Int64(int64(min(limit, 100)))
	if p.StartingAfter != "" {
		params.StartingAfter = stripe.String(p.StartingAfter)
	}
	params.Context = ctx

	var out []*Session
	iter := session.List(params)
	for iter.Next() && len(out) < limit {
		out = append(out, fromStripeSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe checkout sessions: %w", err)
	}
	return out, nil
}

// Refund refunds the full payment intent behind a session
func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if req == nil {
		return nil, fmt.Errorf("refund request is required")
	}

	intentID := req.PaymentIntentID
	if intentID == "" {
		s, err := g.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		intentID = s.PaymentIntentID
	}
	if intentID == "" {
		return nil, fmt.Errorf("session %s has no payment intent to refund", req.SessionID)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		Metadata: map[string]string{
			"session_id": req.SessionID,
			"reason":     req.Reason,
		},
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	return &RefundResult{ID: r.ID, Status: string(r.Status)}, nil
}

func fromStripeSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
		CreatedAt:     time.Unix(s.Created, 0).UTC(),
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
