package service

import (
	"context"
	"sync"
	"testing"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/repository"
)

type analyzerMock struct {
	analyzeFn func(ctx context.Context, title, description string) (domain.TriageResult, error)
}

func (m *analyzerMock) Analyze(ctx context.Context, title, description string) (domain.TriageResult, error) {
	return m.analyzeFn(ctx, title, description)
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type mailerMock struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, to, subject, body string) error
	sent   []sentMail
}

func (m *mailerMock) Send(ctx context.Context, to, subject, body string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, to, subject, body); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *mailerMock) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// ticketRepoSpy records updates and lets a test fail the nth one.
type ticketRepoSpy struct {
	repository.TicketRepository
	mu       sync.Mutex
	updates  []repository.TicketUpdate
	updateFn func(call int, update repository.TicketUpdate) error
}

func (s *ticketRepoSpy) Update(ctx context.Context, id string, update repository.TicketUpdate) (*domain.Ticket, error) {
	s.mu.Lock()
	s.updates = append(s.updates, update)
	call := len(s.updates)
	s.mu.Unlock()

	if s.updateFn != nil {
		if err := s.updateFn(call, update); err != nil {
			return nil, err
		}
	}
	return s.TicketRepository.Update(ctx, id, update)
}

func (s *ticketRepoSpy) Updates() []repository.TicketUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.TicketUpdate(nil), s.updates...)
}

type publisherMock struct {
	mu        sync.Mutex
	publishFn func(ctx context.Context, event events.Event) error
	published []events.Event
}

func (p *publisherMock) Publish(ctx context.Context, event events.Event) error {
	if p.publishFn != nil {
		if err := p.publishFn(ctx, event); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *publisherMock) Published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.published...)
}

func seedUser(t *testing.T, users repository.UserRepository, email string, role domain.UserRole, skills ...string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "x", Role: role, Skills: skills}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func seedTicket(t *testing.T, tickets repository.TicketRepository, title, description string, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	tk := &domain.Ticket{Title: title, Description: description, Status: status, CreatedBy: "user-1"}
	if err := tickets.Create(context.Background(), tk); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return tk
}
