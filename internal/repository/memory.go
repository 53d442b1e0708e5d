package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// MemoryStore keeps tickets and users in process memory. It backs both
// repository interfaces when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets []*domain.Ticket
	users   []*domain.User
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

// Tickets exposes the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return memoryTickets{s} }

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

type memoryTickets struct{ s *MemoryStore }

func (m memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusTodo
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	now := m.s.now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	ticket.RelatedSkills = cloneStrings(ticket.RelatedSkills)

	m.s.tickets = append(m.s.tickets, copyTicket(ticket))
	return nil
}

func (m memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	t := m.find(id)
	if t == nil {
		return nil, pgx.ErrNoRows
	}
	return copyTicket(t), nil
}

func (m memoryTickets) Update(_ context.Context, id string, update TicketUpdate) (*domain.Ticket, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	t := m.find(id)
	if t == nil {
		return nil, pgx.ErrNoRows
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.Priority != nil {
		t.Priority = *update.Priority
	}
	if update.HelpfulNotes != nil {
		t.HelpfulNotes = *update.HelpfulNotes
	}
	if update.RelatedSkills != nil {
		t.RelatedSkills = cloneStrings(update.RelatedSkills)
	}
	if update.AssignedTo != nil {
		v := *update.AssignedTo
		t.AssignedTo = &v
	}
	if update.Solution != nil {
		v := *update.Solution
		t.Solution = &v
	}
	t.UpdatedAt = m.s.now()
	return copyTicket(t), nil
}

func (m memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	result := []domain.Ticket{}
	for i := len(m.s.tickets) - 1; i >= 0; i-- {
		t := m.s.tickets[i]
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo) {
			continue
		}
		result = append(result, *copyTicket(t))
	}
	return result, nil
}

func (m memoryTickets) find(id string) *domain.Ticket {
	for _, t := range m.s.tickets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.findBy(func(u *domain.User) bool { return u.Email == user.Email }) != nil {
		return ErrDuplicate
	}
	if user.Role == "" {
		user.Role = domain.UserRoleUser
	}
	user.ID = uuid.NewString()
	user.CreatedAt = m.s.now()
	user.Skills = cloneStrings(user.Skills)

	m.s.users = append(m.s.users, copyUser(user))
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return m.get(func(u *domain.User) bool { return u.ID == id })
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.get(func(u *domain.User) bool { return u.Email == email })
}

func (m memoryUsers) Update(_ context.Context, id string, update UserUpdate) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	u := m.findBy(func(u *domain.User) bool { return u.ID == id })
	if u == nil {
		return nil, pgx.ErrNoRows
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.Skills != nil {
		u.Skills = cloneStrings(update.Skills)
	}
	return copyUser(u), nil
}

func (m memoryUsers) List(_ context.Context) ([]domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	result := make([]domain.User, 0, len(m.s.users))
	for _, u := range m.s.users {
		result = append(result, *copyUser(u))
	}
	return result, nil
}

func (m memoryUsers) FindOne(_ context.Context, q UserQuery) (*domain.User, error) {
	if q.SkillsMatchAny != nil && skillPattern(q.SkillsMatchAny) == "" {
		return nil, pgx.ErrNoRows
	}
	return m.get(func(u *domain.User) bool {
		if q.Role != "" && u.Role != q.Role {
			return false
		}
		if q.SkillsMatchAny != nil && !domain.MatchesAnySkill(u.Skills, q.SkillsMatchAny) {
			return false
		}
		return true
	})
}

func (m memoryUsers) get(match func(*domain.User) bool) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	u := m.findBy(match)
	if u == nil {
		return nil, pgx.ErrNoRows
	}
	return copyUser(u), nil
}

func (m memoryUsers) findBy(match func(*domain.User) bool) *domain.User {
	for _, u := range m.s.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	out := *t
	out.RelatedSkills = cloneStrings(t.RelatedSkills)
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		out.AssignedTo = &v
	}
	if t.Solution != nil {
		v := *t.Solution
		out.Solution = &v
	}
	if t.Deadline != nil {
		v := *t.Deadline
		out.Deadline = &v
	}
	return &out
}

func copyUser(u *domain.User) *domain.User {
	out := *u
	out.Skills = cloneStrings(u.Skills)
	return &out
}
