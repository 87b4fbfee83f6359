package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
	"github.com/anoirbs/hotel-sub000/pkg/telemetry"
)

// AuthService registers and authenticates accounts
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	// EnsureAdmin creates the admin account if no account uses email yet
	EnsureAdmin(ctx context.Context, email, password, name string) error
}

// TokenIssuer is satisfied by *middleware.TokenIssuer
type TokenIssuer interface {
	Issue(claims middleware.Claims) (string, time.Time, error)
}

// AuthServiceConfig contains configuration for auth service
type AuthServiceConfig struct {
	BcryptCost int
}

type authService struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
	cost     int
	log      *logger.Logger
	now      func() time.Time
	// compared against on unknown emails so both failure paths cost a bcrypt round
	dummyHash []byte
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repository.UserRepository, tokens TokenIssuer, cfg *AuthServiceConfig) AuthService {
	cost := bcrypt.DefaultCost
	if cfg != nil && cfg.BcryptCost >= bcrypt.MinCost && cfg.BcryptCost <= bcrypt.MaxCost {
		cost = cfg.BcryptCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &authService{
		userRepo:  userRepo,
		tokens:    tokens,
		cost:      cost,
		log:       logger.Get(),
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.register")
	defer span.End()

	if req == nil {
		return nil, domain.NewValidationError("", "request body is required")
	}
	if len(req.Password) < 8 {
		span.SetStatus(codes.Error, "weak password")
		return nil, domain.NewValidationError("password", "must be at least 8 characters")
	}

	user, err := s.createUser(ctx, req.Email, req.Password, req.Name, domain.RoleCustomer)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	span.SetStatus(codes.Ok, "")
	return s.authResponse(user)
}

func (s *authService) createUser(ctx context.Context, email, password, name, role string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.login")
	defer span.End()

	if req == nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			span.SetStatus(codes.Error, "invalid credentials")
			return nil, domain.ErrInvalidCredentials
		}
		telemetry.Fail(span, err)
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, domain.ErrInvalidCredentials
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	span.SetStatus(codes.Ok, "")
	return s.authResponse(user)
}

func (s *authService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			s.log.Warn("admin email belongs to a non-admin account", zap.String("email", email))
		}
		return nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	if name == "" {
		name = "Administrator"
	}
	user, err := s.createUser(ctx, email, password, name, domain.RoleAdmin)
	if errors.Is(err, domain.ErrEmailTaken) {
		// another instance seeded it first
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	s.log.Info("admin account created", zap.String("user_id", user.ID), zap.String("email", email))
	return nil
}

func (s *authService) authResponse(user *domain.User) (*dto.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Issue(middleware.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &dto.AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        dto.FromUser(user),
	}, nil
}
