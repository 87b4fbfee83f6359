package di

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anoirbs/hotel-sub000/internal/gateway"
	"github.com/anoirbs/hotel-sub000/internal/handler"
	"github.com/anoirbs/hotel-sub000/internal/metrics"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/config"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
)

// Container holds all dependencies of the hotel API and its workers
type Container struct {
	Config *config.Config
	Infra  *Infra

	// Repositories
	BookingRepo repository.BookingRepository
	RoomRepo    repository.RoomRepository
	UserRepo    repository.UserRepository

	// External
	Gateway        gateway.PaymentGateway
	EventPublisher service.EventPublisher
	Tokens         *middleware.TokenIssuer

	// Services
	Availability    service.AvailabilityChecker
	PaymentSessions service.PaymentSessionService
	Reconciler      service.Reconciler
	BookingService  service.BookingService
	RoomService     service.RoomService
	AuthService     service.AuthService

	// HTTP
	Routes *handler.Routes
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config *config.Config
	Infra  *Infra
	Logger *logger.Logger
	// Gateway overrides the gateway selected by PAYMENT_GATEWAY
	Gateway gateway.PaymentGateway
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	appCfg := cfg.Config
	infra := cfg.Infra
	if infra == nil {
		infra = &Infra{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Container{Config: appCfg, Infra: infra}

	if infra.DB != nil {
		c.BookingRepo = repository.NewPostgresBookingRepository(infra.DB.Pool())
		c.RoomRepo = repository.NewPostgresRoomRepository(infra.DB.Pool())
		c.UserRepo = repository.NewPostgresUserRepository(infra.DB.Pool())
	} else {
		c.BookingRepo = repository.NewMemoryBookingRepository()
		c.RoomRepo = repository.NewMemoryRoomRepository()
		c.UserRepo = repository.NewMemoryUserRepository()
	}

	c.Gateway = cfg.Gateway
	if c.Gateway == nil {
		gw, err := gateway.New(&appCfg.Payment)
		if err != nil {
			return nil, fmt.Errorf("failed to create payment gateway: %w", err)
		}
		c.Gateway = gw
	}

	if infra.Producer != nil {
		pub, err := service.NewKafkaEventPublisher(infra.Producer, &service.EventPublisherConfig{
			Topic:       appCfg.Booking.EventsTopic,
			RefundTopic: appCfg.Booking.RefundTopic,
			ServiceName: appCfg.App.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		c.EventPublisher = pub
	} else {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}

	c.Tokens = middleware.NewTokenIssuer(appCfg.JWT.Secret, appCfg.JWT.Issuer, appCfg.JWT.AccessTokenTTL)

	// Services
	c.Availability = service.NewAvailabilityChecker(c.BookingRepo)
	c.PaymentSessions = service.NewPaymentSessionService(c.RoomRepo, c.Availability, c.Gateway, &service.PaymentSessionConfig{
		Currency:      appCfg.Payment.Currency,
		SuccessURL:    appCfg.Payment.SuccessURL,
		CancelURL:     appCfg.Payment.CancelURL,
		MaxStayNights: appCfg.Booking.MaxStayNights,
		Timeout:       appCfg.Payment.Timeout,
	})
	c.Reconciler = service.NewReconciler(c.BookingRepo, c.RoomRepo, c.Availability, c.Gateway, c.EventPublisher,
		&service.ReconcilerConfig{
			Currency: appCfg.Payment.Currency,
			Timeout:  appCfg.Payment.Timeout,
		})
	c.BookingService = service.NewBookingService(c.BookingRepo, c.RoomRepo, c.Availability, c.EventPublisher,
		&service.BookingServiceConfig{MaxStayNights: appCfg.Booking.MaxStayNights})
	c.RoomService = service.NewRoomService(c.RoomRepo, c.Availability)
	c.AuthService = service.NewAuthService(c.UserRepo, c.Tokens, &service.AuthServiceConfig{BcryptCost: appCfg.JWT.BcryptCost})

	// Handlers
	routes := &handler.Routes{
		Auth:     handler.NewAuthHandler(c.AuthService),
		Rooms:    handler.NewRoomHandler(c.RoomService),
		Bookings: handler.NewBookingHandler(c.PaymentSessions, c.Reconciler, c.BookingService),
		Admin:    handler.NewAdminHandler(c.RoomService, c.BookingService),
		Health:   handler.NewHealthHandler(c.healthComponents()...),
		Tokens:   c.Tokens,
	}
	if appCfg.Payment.StripeWebhookSecret != "" {
		routes.Webhook = handler.NewWebhookHandler(c.Reconciler, appCfg.Payment.StripeWebhookSecret)
	}
	if infra.Redis != nil {
		routes.Idempotency = middleware.Idempotency(middleware.IdempotencyConfig{
			Store:         infra.Redis,
			TTL:           appCfg.Booking.IdempotencyTTL,
			ProcessingTTL: 30 * time.Second,
			Logger:        log,
		})
		if appCfg.RateLimit.Enabled {
			routes.RateLimit = middleware.NewRedisRateLimiter(middleware.RateLimitConfig{
				Redis:             infra.Redis,
				RequestsPerSecond: appCfg.RateLimit.RequestsPerSecond,
				BurstSize:         appCfg.RateLimit.BurstSize,
				Logger:            log,
				OnLimited: func(ctx context.Context, _ string) {
					metrics.RateLimitRejections.Inc(ctx)
				},
			}).Middleware()
		}
	}
	c.Routes = routes

	return c, nil
}

func (c *Container) healthComponents() []handler.Component {
	db := handler.Component{Name: "database"}
	if c.Infra.DB != nil {
		db.Check = c.Infra.DB
	}
	cache := handler.Component{Name: "redis"}
	if c.Infra.Redis != nil {
		cache.Check = c.Infra.Redis
	}
	return []handler.Component{db, cache}
}

// Router builds the gin engine with every route mounted
func (c *Container) Router(log *logger.Logger) *gin.Engine {
	r := handler.NewEngine(&handler.EngineConfig{
		ServiceName:    c.Config.OTel.ServiceName,
		AllowedOrigins: c.Config.CORS.AllowedOrigins,
		Logger:         log,
	})
	c.Routes.Register(r)
	return r
}

// SeedAdmin creates the configured admin account if missing
func (c *Container) SeedAdmin(ctx context.Context) error {
	admin := c.Config.Admin
	if admin.Email == "" {
		return nil
	}
	return c.AuthService.EnsureAdmin(ctx, admin.Email, admin.Password, admin.Name)
}

// Close releases the infrastructure. The Kafka publisher shares
// Infra.Producer and is closed with it.
func (c *Container) Close() {
	c.Infra.Close()
}
