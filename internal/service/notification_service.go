package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/mailer"
	"github.com/helperdesk/helper-tickets/internal/repository"
)

// WelcomeSubject is the subject of the signup mail.
const WelcomeSubject = "Welcome to HELPER"

const welcomeBody = "Hi,\n\nThanks for signing up for HELPER! We're glad to have you onboard.\n\n" +
	"You can now raise support tickets and our AI triage will route each one " +
	"to the moderator best placed to solve it.\n\n" +
	"Get started by visiting your dashboard.\n\nBest regards,\nThe HELPER Team"

// NotificationService sends account mails.
type NotificationService struct {
	users  repository.UserRepository
	mailer mailer.Mailer
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(users repository.UserRepository, m mailer.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{users: users, mailer: m, logger: logger}
}

// SendWelcome mails a newly registered user. A user that no longer exists
// is a permanent failure; a mail failure may be retried.
func (n *NotificationService) SendWelcome(ctx context.Context, payload events.UserSignupPayload) error {
	user, err := n.lookup(ctx, payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return events.NonRetriable(fmt.Errorf("signup user %q not found", payload.Email))
		}
		return err
	}
	if n.mailer == nil {
		return nil
	}
	if err := n.mailer.Send(ctx, user.Email, WelcomeSubject, welcomeBody); err != nil {
		return fmt.Errorf("send welcome mail: %w", err)
	}
	n.logger.Info("welcome mail sent", zap.String("user_id", user.ID))
	return nil
}

func (n *NotificationService) lookup(ctx context.Context, payload events.UserSignupPayload) (*domain.User, error) {
	if payload.UserID != "" {
		return n.users.GetByID(ctx, payload.UserID)
	}
	return n.users.GetByEmail(ctx, normalizeEmail(payload.Email))
}
