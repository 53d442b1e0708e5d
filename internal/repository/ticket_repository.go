package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// TicketFilter narrows ticket listings. Nil fields are ignored.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
}

// TicketUpdate is a partial update. Only non-nil fields are written.
type TicketUpdate struct {
	Status        *domain.TicketStatus
	Priority      *domain.TicketPriority
	HelpfulNotes  *string
	RelatedSkills []string
	AssignedTo    *string
	Solution      *string
}

// IsEmpty reports whether the update would change nothing.
func (u TicketUpdate) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.HelpfulNotes == nil &&
		u.RelatedSkills == nil && u.AssignedTo == nil && u.Solution == nil
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Update(ctx context.Context, id string, update TicketUpdate) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

var ticketColumns = []string{
	"id", "title", "description", "status", "priority", "created_by", "assigned_to",
	"helpful_notes", "related_skills", "solution", "deadline", "created_at", "updated_at",
}

type ticketRepository struct {
	q Querier
}

// NewTicketRepository returns a Postgres-backed implementation.
func NewTicketRepository(q Querier) TicketRepository {
	return &ticketRepository{q: q}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusTodo
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	ticket.RelatedSkills = cloneStrings(ticket.RelatedSkills)

	query, args, err := psql.Insert("tickets").
		Columns("title", "description", "status", "priority", "created_by", "assigned_to",
			"helpful_notes", "related_skills", "solution", "deadline").
		Values(ticket.Title, ticket.Description, string(ticket.Status), string(ticket.Priority),
			ticket.CreatedBy, ticket.AssignedTo, ticket.HelpfulNotes, ticket.RelatedSkills,
			ticket.Solution, ticket.Deadline).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert ticket: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query, args, err := psql.Select(ticketColumns...).
		From("tickets").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ticket: %w", err)
	}
	return scanTicket(r.q.QueryRow(ctx, query, args...))
}

func (r *ticketRepository) Update(ctx context.Context, id string, update TicketUpdate) (*domain.Ticket, error) {
	builder := psql.Update("tickets").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(ticketColumns, ", "))

	if update.Status != nil {
		builder = builder.Set("status", string(*update.Status))
	}
	if update.Priority != nil {
		builder = builder.Set("priority", string(*update.Priority))
	}
	if update.HelpfulNotes != nil {
		builder = builder.Set("helpful_notes", *update.HelpfulNotes)
	}
	if update.RelatedSkills != nil {
		builder = builder.Set("related_skills", cloneStrings(update.RelatedSkills))
	}
	if update.AssignedTo != nil {
		builder = builder.Set("assigned_to", *update.AssignedTo)
	}
	if update.Solution != nil {
		builder = builder.Set("solution", *update.Solution)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update ticket: %w", err)
	}
	return scanTicket(r.q.QueryRow(ctx, query, args...))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	builder := psql.Select(ticketColumns...).
		From("tickets").
		OrderBy("created_at DESC")
	if filter.CreatedBy != nil {
		builder = builder.Where(squirrel.Eq{"created_by": *filter.CreatedBy})
	}
	if filter.AssignedTo != nil {
		builder = builder.Where(squirrel.Eq{"assigned_to": *filter.AssignedTo})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tickets: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		status   string
		priority string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&priority,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.HelpfulNotes,
		&ticket.RelatedSkills,
		&ticket.Solution,
		&ticket.Deadline,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, mapReadError(err)
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	if ticket.RelatedSkills == nil {
		ticket.RelatedSkills = []string{}
	}
	return &ticket, nil
}
