package gateway

import (
	"fmt"

	"github.com/anoirbs/hotel-sub000/pkg/config"
)

// New builds the gateway selected by PAYMENT_GATEWAY
func New(cfg *config.PaymentConfig) (PaymentGateway, error) {
	switch cfg.Gateway {
	case "stripe":
		return NewStripeGateway(&StripeGatewayConfig{
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.Timeout,
		})
	case "mock", "":
		return NewMockGateway(&MockGatewayConfig{AutoPay: true}), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway: %s", cfg.Gateway)
	}
}
