package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/auth"
	"github.com/helperdesk/helper-tickets/internal/config"
	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/repository"
	apperrors "github.com/helperdesk/helper-tickets/pkg/util/errorutil"
)

// AuthService coordinates registration, login and account management.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	revoked    auth.RevocationStore
	publisher  EventPublisher
	logger     *zap.Logger
	bcryptCost int
	adminEmail string
}

// AuthDependencies encapsulates collaborators for auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	Revocations auth.RevocationStore
	Publisher   EventPublisher
	Logger      *zap.Logger
}

// SignupInput describes a new account.
type SignupInput struct {
	Email    string
	Password string
	Role     string
	Skills   []string
}

// UserUpdateInput is an admin edit addressed by e-mail.
type UserUpdateInput struct {
	Email  string
	Role   *string
	Skills []string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	revoked := deps.Revocations
	if revoked == nil {
		revoked = auth.NewMemoryRevocations()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		revoked:    revoked,
		publisher:  deps.Publisher,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
		adminEmail: normalizeEmail(cfg.Auth.AdminEmail),
	}
}

// Signup creates an account. The configured admin e-mail always becomes an
// admin; anyone else asking for admin gets a plain user account.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*domain.User, domain.Token, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.Token{}, apperrors.NewValidationError("a valid email is required", map[string]any{"field": "email"})
	}
	if input.Password == "" {
		return nil, domain.Token{}, apperrors.NewValidationError("password is required", map[string]any{"field": "password"})
	}
	role, err := s.signupRole(email, input.Role)
	if err != nil {
		return nil, domain.Token{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.Token{}, apperrors.NewConflict("user already exists", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Token{}, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Skills:       cleanSkills(input.Skills),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.Token{}, apperrors.NewConflict("user already exists", map[string]any{"email": email})
		}
		return nil, domain.Token{}, apperrors.MapError(err)
	}

	s.publishSignup(ctx, user)

	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	return user, token, nil
}

func (s *AuthService) signupRole(email, requested string) (domain.UserRole, error) {
	if s.adminEmail != "" && email == s.adminEmail {
		return domain.UserRoleAdmin, nil
	}
	if requested == "" {
		return domain.UserRoleUser, nil
	}
	role := domain.UserRole(strings.ToLower(strings.TrimSpace(requested)))
	if !role.Valid() {
		return "", apperrors.NewValidationError("invalid role", map[string]any{"role": requested})
	}
	if role == domain.UserRoleAdmin {
		return domain.UserRoleUser, nil
	}
	return role, nil
}

func (s *AuthService) publishSignup(ctx context.Context, user *domain.User) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(events.EventUserSignup, user.ID, events.UserSignupPayload{
		UserID: user.ID,
		Email:  user.Email,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Error("publish user signup failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// Login authenticates by e-mail and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, domain.Token, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, domain.Token{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	return user, token, nil
}

// Logout revokes the presented token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.NewUnauthorized("unauthorized")
	}
	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return apperrors.NewUnauthorized("unauthorized")
	}
	if err := s.revoked.Revoke(ctx, claims.ID, expiresAt.Time); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// UpdateUser changes role and skills of the account with the given e-mail.
// Empty skills keep the current ones.
func (s *AuthService) UpdateUser(ctx context.Context, actor *domain.User, input UserUpdateInput) (*domain.User, error) {
	if actor == nil || actor.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewForbidden("forbidden")
	}
	email := normalizeEmail(input.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}

	var update repository.UserUpdate
	if input.Role != nil && *input.Role != "" {
		role := domain.UserRole(strings.ToLower(strings.TrimSpace(*input.Role)))
		if !role.Valid() {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *input.Role})
		}
		if email == s.adminEmail && role != domain.UserRoleAdmin {
			return nil, apperrors.NewValidationError("cannot change admin role", nil)
		}
		update.Role = &role
	}
	if skills := cleanSkills(input.Skills); len(skills) > 0 {
		update.Skills = skills
	}
	if update.Role == nil && update.Skills == nil {
		return user, nil
	}

	updated, err := s.users.Update(ctx, user.ID, update)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user updated", zap.String("user_id", updated.ID), zap.String("actor_id", actor.ID))
	return updated, nil
}

// ListUsers returns every account for an admin.
func (s *AuthService) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if actor == nil || actor.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewForbidden("forbidden")
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Revocations exposes the revocation store for middleware usage.
func (s *AuthService) Revocations() auth.RevocationStore {
	return s.revoked
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cleanSkills(skills []string) []string {
	out := []string{}
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
