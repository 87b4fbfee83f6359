package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/internal/dto"
	"github.com/anoirbs/hotel-sub000/internal/repository"
	"github.com/anoirbs/hotel-sub000/pkg/middleware"
)

func newAuthService() (AuthService, *repository.MemoryUserRepository, *middleware.TokenIssuer) {
	users := repository.NewMemoryUserRepository()
	tokens := middleware.NewTokenIssuer("test-secret", "hotel-test", time.Hour)
	return NewAuthService(users, tokens, &AuthServiceConfig{BcryptCost: bcrypt.MinCost}), users, tokens
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, users, tokens := newAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, &dto.RegisterRequest{Email: " Ada@Example.com ", Password: "correct-horse", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, domain.RoleCustomer, reg.User.Role)

	claims, err := tokens.Verify(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, domain.RoleCustomer, claims.Role)

	stored, err := users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)

	login, err := svc.Login(ctx, &dto.LoginRequest{Email: "ADA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
}

func TestAuthService_Register_Rejections(t *testing.T) {
	svc, _, _ := newAuthService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &dto.RegisterRequest{Email: "ada@example.com", Password: "correct-horse", Name: "Ada"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		req   *dto.RegisterRequest
		check func(t *testing.T, err error)
	}{
		{"duplicate email", &dto.RegisterRequest{Email: "ADA@example.com", Password: "another-pass", Name: "Ada"},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrEmailTaken) }},
		{"short password", &dto.RegisterRequest{Email: "bob@example.com", Password: "short", Name: "Bob"},
			func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) }},
		{"blank name", &dto.RegisterRequest{Email: "bob@example.com", Password: "long-enough", Name: "  "},
			func(t *testing.T, err error) { assert.True(t, domain.IsValidationError(err)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	svc, _, _ := newAuthService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &dto.RegisterRequest{Email: "ada@example.com", Password: "correct-horse", Name: "Ada"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "ada@example.com", Password: "wrong-horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	svc, users, _ := newAuthService()
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "", "", ""))

	require.NoError(t, svc.EnsureAdmin(ctx, "Admin@Hotel.test", "admin-password", ""))
	admin, err := users.GetByEmail(ctx, "admin@hotel.test")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.Equal(t, "Administrator", admin.Name)

	// second start keeps the existing account
	require.NoError(t, svc.EnsureAdmin(ctx, "admin@hotel.test", "other-password", "Boss"))
	again, err := users.GetByEmail(ctx, "admin@hotel.test")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	login, err := svc.Login(ctx, &dto.LoginRequest{Email: "admin@hotel.test", Password: "admin-password"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, login.User.Role)
}

// brokenUserRepo fails every lookup
type brokenUserRepo struct {
	repository.UserRepository
}

func (brokenUserRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("connection refused")
}

func TestAuthService_EnsureAdmin_StoreError(t *testing.T) {
	svc := NewAuthService(brokenUserRepo{}, middleware.NewTokenIssuer("s", "i", time.Hour), &AuthServiceConfig{BcryptCost: bcrypt.MinCost})
	err := svc.EnsureAdmin(context.Background(), "admin@hotel.test", "admin-password", "")
	assert.ErrorContains(t, err, "connection refused")
}
