package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/repository"
	apperrors "github.com/helperdesk/helper-tickets/pkg/util/errorutil"
)

const (
	minTitleLength       = 5
	minDescriptionLength = 10
)

// EventPublisher emits events into the delivery layer.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TicketService handles the request side of tickets.
type TicketService struct {
	tickets   repository.TicketRepository
	publisher EventPublisher
	logger    *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Publisher  EventPublisher
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketUpdateInput is a moderator or admin edit. Nil fields are untouched.
type TicketUpdateInput struct {
	Status   *string
	Solution *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		publisher: deps.Publisher,
		logger:    logger,
	}
}

// CreateTicket stores a new TODO ticket and announces it. A publish failure
// is logged and the ticket is still returned.
func (s *TicketService) CreateTicket(ctx context.Context, creator *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if creator == nil {
		return nil, apperrors.NewUnauthorized("user authentication required")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description are required", nil)
	}
	if len([]rune(title)) < minTitleLength {
		return nil, apperrors.NewValidationError("title must be at least 5 characters long",
			map[string]any{"field": "title", "min": minTitleLength})
	}
	if len([]rune(description)) < minDescriptionLength {
		return nil, apperrors.NewValidationError("description must be at least 10 characters long",
			map[string]any{"field": "description", "min": minDescriptionLength})
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusTodo,
		CreatedBy:   creator.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishCreated(ctx, ticket)
	return ticket, nil
}

func (s *TicketService) publishCreated(ctx context.Context, ticket *domain.Ticket) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		TicketID:    ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		CreatedBy:   ticket.CreatedBy,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Error("publish ticket created failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	s.logger.Info("ticket queued for triage", zap.String("ticket_id", ticket.ID))
}

// ListTickets returns what the viewer may see, newest first.
func (s *TicketService) ListTickets(ctx context.Context, viewer *domain.User) ([]domain.Ticket, error) {
	if viewer == nil {
		return nil, apperrors.NewUnauthorized("user authentication required")
	}
	var filter repository.TicketFilter
	switch viewer.Role {
	case domain.UserRoleAdmin:
	case domain.UserRoleModerator:
		filter.AssignedTo = &viewer.ID
	default:
		filter.CreatedBy = &viewer.ID
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicket fetches a ticket the viewer may see. Tickets outside the
// viewer's scope are reported as not found.
func (s *TicketService) GetTicket(ctx context.Context, viewer *domain.User, ticketID string) (*domain.Ticket, error) {
	if viewer == nil {
		return nil, apperrors.NewUnauthorized("user authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !canView(viewer, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// UpdateTicket lets a moderator edit an assigned ticket, or an admin any ticket.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("user authentication required")
	}

	if actor.Role != domain.UserRoleModerator && actor.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewForbidden("only moderators and admins can update tickets")
	}

	var update repository.TicketUpdate
	if input.Status != nil && *input.Status != "" {
		status := domain.TicketStatus(*input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status value",
				map[string]any{"status": *input.Status})
		}
		update.Status = &status
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if err != nil || !canView(actor, ticket) {
		resource := "ticket"
		if actor.Role == domain.UserRoleModerator {
			resource = "ticket assigned to you"
		}
		return nil, apperrors.NewNotFound(resource, map[string]any{"ticket_id": ticketID})
	}

	if input.Solution != nil {
		solution := strings.TrimSpace(*input.Solution)
		update.Solution = &solution
	}
	if update.IsEmpty() {
		return nil, apperrors.NewValidationError("no updates provided", nil)
	}

	updated, err := s.tickets.Update(ctx, ticketID, update)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("ticket updated",
		zap.String("ticket_id", ticketID),
		zap.String("actor_id", actor.ID),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

func canView(viewer *domain.User, ticket *domain.Ticket) bool {
	switch viewer.Role {
	case domain.UserRoleAdmin:
		return true
	case domain.UserRoleModerator:
		return ticket.AssignedTo != nil && *ticket.AssignedTo == viewer.ID
	default:
		return ticket.CreatedBy == viewer.ID
	}
}
