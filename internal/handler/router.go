package handler

import (
	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

// EngineConfig configures the global middleware chain
type EngineConfig struct {
	ServiceName    string
	AllowedOrigins []string
	Logger         *logger.Logger
}

// NewEngine creates a gin engine with recovery, request ids, tracing,
// access logs and CORS
func NewEngine(cfg *EngineConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	return r
}

// Routes holds every handler of the API. Webhook, RateLimit and
// Idempotency may be nil to leave that feature off.
type Routes struct {
	Auth     *AuthHandler
	Rooms    *RoomHandler
	Bookings *BookingHandler
	Admin    *AdminHandler
	Webhook  *WebhookHandler
	Health   *HealthHandler

	Tokens      *middleware.TokenIssuer
	RateLimit   gin.HandlerFunc
	Idempotency gin.HandlerFunc
}

// Register mounts the routes on r
func (rt *Routes) Register(r *gin.Engine) {
	r.GET("/health", rt.Health.Health)
	r.GET("/ready", rt.Health.Ready)

	if rt.Webhook != nil {
		r.POST("/webhooks/stripe", rt.Webhook.HandleStripeWebhook)
	}

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth", rt.optional(rt.RateLimit)...)
	{
		auth.POST("/register", rt.Auth.Register)
		auth.POST("/login", rt.Auth.Login)
	}

	rooms := v1.Group("/rooms")
	{
		rooms.GET("", rt.Rooms.List)
		rooms.GET("/:id", rt.Rooms.Get)
		rooms.GET("/:id/availability", rt.Rooms.Availability)
	}

	authed := v1.Group("", middleware.Auth(rt.Tokens))
	{
		checkout := append(rt.optional(rt.RateLimit, rt.Idempotency), rt.Bookings.Checkout)
		authed.POST("/bookings/checkout", checkout...)
		authed.POST("/confirm", rt.Bookings.Confirm)
		authed.GET("/bookings", rt.Bookings.ListMine)
		authed.GET("/bookings/:id", rt.Bookings.Get)
		authed.POST("/bookings/:id/cancel", rt.Bookings.Cancel)
	}

	admin := v1.Group("/admin", middleware.Auth(rt.Tokens), middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/rooms", rt.Admin.ListRooms)
		admin.POST("/rooms", rt.Admin.CreateRoom)
		admin.PUT("/rooms/:id", rt.Admin.UpdateRoom)
		admin.DELETE("/rooms/:id", rt.Admin.DeleteRoom)

		admin.GET("/bookings", rt.Admin.ListBookings)
		admin.PATCH("/bookings/:id/dates", rt.Admin.UpdateDates)
		admin.POST("/bookings/:id/complete", rt.Admin.CompleteBooking)
		admin.POST("/bookings/:id/cancel", rt.Admin.CancelBooking)
	}
}

func (rt *Routes) optional(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
