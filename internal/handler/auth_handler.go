package handler

import (
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/service"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles registration and login
type AuthHandler struct {
	auth service.AuthService
}

func NewAuthHandler(auth service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.auth.register")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.auth.Register(ctx, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	span.SetAttributes(attribute.String("user_id", result.User.ID))
	response.Created(c, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.auth.login")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.Fail(span, err)
		bindError(c, err)
		return
	}

	result, err := h.auth.Login(ctx, &req)
	if err != nil {
		telemetry.Fail(span, err)
		handleError(c, err)
		return
	}
	response.OK(c, result)
}
