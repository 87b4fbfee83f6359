package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anoirbs/hotel-sub000/internal/domain"
)

const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// AutoPay marks sessions paid as soon as they are created, standing in
	// for the customer completing the hosted checkout page
	AutoPay bool
}

// MockGateway is an in-memory PaymentGateway with Stripe-shaped ids
type MockGateway struct {
	config   *MockGatewayConfig
	mu       sync.RWMutex
	sessions map[string]*Session
	refunds  map[string]*RefundResult
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = &MockGatewayConfig{}
	}
	return &MockGateway{
		config:   config,
		sessions: make(map[string]*Session),
		refunds:  make(map[string]*RefundResult),
	}
}

func (g *MockGateway) Name() string {
	return "mock"
}

func copySession(s *Session) *Session {
	c := *s
	c.Metadata = make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Session, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}

	id := "cs_mock_" + randomAlphanumeric(24)
	s := &Session{
		ID:            id,
		URL:           strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id),
		Status:        "open",
		PaymentStatus: PaymentStatusUnpaid,
		AmountTotal:   domain.ToMinorUnits(req.NightlyPrice, req.Currency) * int64(req.Nights),
		Currency:      req.Currency,
		Metadata:      req.Metadata.ToMap(),
		CreatedAt:     time.Now().UTC(),
	}
	if g.config.AutoPay {
		markPaid(s)
	}

	g.mu.Lock()
	g.sessions[id] = s
	g.mu.Unlock()

	return copySession(s), nil
}

func markPaid(s *Session) {
	s.Status = "complete"
	s.PaymentStatus = PaymentStatusPaid
	s.PaymentIntentID = "pi_mock_" + randomAlphanumeric(24)
}

func (g *MockGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(s), nil
}

func (g *MockGateway) ListSessions(ctx context.Context, p ListSessionsParams) ([]*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Session
	for _, s := range g.sessions {
		if s.Status != "complete" || s.CreatedAt.Before(p.CreatedAfter) {
			continue
		}
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if p.StartingAfter != "" {
		for i, s := range out {
			if s.ID == p.StartingAfter {
				out = out[i+1:]
				break
			}
		}
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

// Refund is idempotent on IdempotencyKey like Stripe's API
func (g *MockGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[req.SessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.IsPaid() {
		return nil, fmt.Errorf("session %s has no payment to refund", req.SessionID)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = req.SessionID
	}
	if r, ok := g.refunds[key]; ok {
		return r, nil
	}
	r := &RefundResult{ID: "re_mock_" + randomAlphanumeric(24), Status: "succeeded"}
	g.refunds[key] = r
	return r, nil
}

// MarkPaid completes a session as if the customer paid
func (g *MockGateway) MarkPaid(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	markPaid(s)
	return nil
}

// Put stores s, replacing any session with the same id
func (g *MockGateway) Put(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s.ID] = copySession(s)
}

// RefundCount returns the number of distinct refunds issued
func (g *MockGateway) RefundCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.refunds)
}
