package auth

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/repository"
	apperrors "github.com/helperdesk/helper-tickets/pkg/util/errorutil"
)

func TestTokenManager_roundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	user := &domain.User{ID: "u-1", Role: domain.UserRoleModerator}

	tok, err := tm.GenerateToken(user)
	require.NoError(t, err)
	assert.Equal(t, "u-1", tok.SubjectID)

	claims, err := tm.ParseToken(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, domain.UserRoleModerator, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_rejects(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	tok, err := tm.GenerateToken(&domain.User{ID: "u-1", Role: domain.UserRoleUser})
	require.NoError(t, err)

	_, err = NewTokenManager("other", 5).ParseToken(tok.Value)
	assert.Error(t, err, "wrong secret")

	expired := NewTokenManager("secret", 5)
	expired.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = expired.ParseToken(tok.Value)
	assert.Error(t, err, "expired")

	_, err = tm.ParseToken("garbage")
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter22"))
	assert.ErrorIs(t, ComparePassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestMemoryRevocations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocations()

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = store.IsRevoked(ctx, "jti-old")
	assert.False(t, revoked)
}

func newTestApp(t *testing.T, mw *AuthMiddleware, roles ...domain.UserRole) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/me", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		user, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(user.Email)
	})
	return app
}

func call(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestAuthMiddleware(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryStore().Users()
	admin := &domain.User{Email: "admin@helper.com", Role: domain.UserRoleAdmin}
	plain := &domain.User{Email: "user@helper.com", Role: domain.UserRoleUser}
	require.NoError(t, users.Create(ctx, admin))
	require.NoError(t, users.Create(ctx, plain))

	tm := NewTokenManager("secret", 5)
	revoked := NewMemoryRevocations()
	mw := NewAuthMiddleware(tm, users, revoked)
	app := newTestApp(t, mw, domain.UserRoleAdmin)

	adminTok, err := tm.GenerateToken(admin)
	require.NoError(t, err)
	userTok, err := tm.GenerateToken(plain)
	require.NoError(t, err)
	ghostTok, err := tm.GenerateToken(&domain.User{ID: "ghost", Role: domain.UserRoleAdmin})
	require.NoError(t, err)

	status, body := call(t, app, adminTok.Value)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin@helper.com", body)

	status, _ = call(t, app, userTok.Value)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = call(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = call(t, app, ghostTok.Value)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	claims, err := tm.ParseToken(adminTok.Value)
	require.NoError(t, err)
	require.NoError(t, revoked.Revoke(ctx, claims.ID, adminTok.ExpiresAt))
	status, body = call(t, app, adminTok.Value)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body)
}
