package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/events"
	"github.com/helperdesk/helper-tickets/internal/repository"
	apperrors "github.com/helperdesk/helper-tickets/pkg/util/errorutil"
)

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperrors.ToDomainError(err).HTTPStatus)
}

func TestTicketService_CreateTicket(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &publisherMock{}
	svc := NewTicketService(TicketDependencies{TicketRepo: store.Tickets(), Publisher: pub})
	creator := &domain.User{ID: "user-1", Role: domain.UserRoleUser}

	ticket, err := svc.CreateTicket(context.Background(), creator, TicketCreateInput{
		Title:       "  Cannot log in to dashboard ",
		Description: "Login returns 500 after password reset",
	})
	require.NoError(t, err)

	assert.Equal(t, "Cannot log in to dashboard", ticket.Title)
	assert.Equal(t, domain.TicketStatusTodo, ticket.Status)
	assert.Equal(t, "user-1", ticket.CreatedBy)

	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTicketCreated, published[0].Type)
	var payload events.TicketCreatedPayload
	require.NoError(t, published[0].Decode(&payload))
	assert.Equal(t, ticket.ID, payload.TicketID)
	assert.Equal(t, "user-1", payload.CreatedBy)
}

func TestTicketService_CreateTicket_validation(t *testing.T) {
	svc := NewTicketService(TicketDependencies{TicketRepo: repository.NewMemoryStore().Tickets()})
	creator := &domain.User{ID: "user-1"}

	tests := []struct {
		name  string
		input TicketCreateInput
	}{
		{name: "missing title", input: TicketCreateInput{Description: "Login returns 500"}},
		{name: "short title", input: TicketCreateInput{Title: " abc  ", Description: "Login returns 500"}},
		{name: "short description", input: TicketCreateInput{Title: "Cannot log in", Description: "  broken   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTicket(context.Background(), creator, tt.input)
			requireStatus(t, err, http.StatusBadRequest)
		})
	}

	_, err := svc.CreateTicket(context.Background(), nil, TicketCreateInput{Title: "Cannot log in", Description: "Login returns 500"})
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestTicketService_CreateTicket_publishFailureStillCreates(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &publisherMock{publishFn: func(context.Context, events.Event) error {
		return events.ErrBusClosed
	}}
	svc := NewTicketService(TicketDependencies{TicketRepo: store.Tickets(), Publisher: pub})

	ticket, err := svc.CreateTicket(context.Background(), &domain.User{ID: "user-1"}, TicketCreateInput{
		Title:       "Cannot log in",
		Description: "Login returns 500 after password reset",
	})
	require.NoError(t, err)

	stored, err := store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusTodo, stored.Status)
}

type ticketScopeFixture struct {
	svc       *TicketService
	user      *domain.User
	other     *domain.User
	moderator *domain.User
	admin     *domain.User
	owned     *domain.Ticket
	assigned  *domain.Ticket
}

func newTicketScopeFixture(t *testing.T) *ticketScopeFixture {
	store := repository.NewMemoryStore()
	f := &ticketScopeFixture{
		svc:       NewTicketService(TicketDependencies{TicketRepo: store.Tickets()}),
		user:      &domain.User{ID: "user-1", Role: domain.UserRoleUser},
		other:     &domain.User{ID: "user-2", Role: domain.UserRoleUser},
		moderator: &domain.User{ID: "mod-1", Role: domain.UserRoleModerator},
		admin:     &domain.User{ID: "admin-1", Role: domain.UserRoleAdmin},
	}
	f.owned = seedTicket(t, store.Tickets(), "Printer offline", "Office printer unreachable", domain.TicketStatusTodo)

	f.assigned = seedTicket(t, store.Tickets(), "VPN drops", "VPN disconnects every ten minutes", domain.TicketStatusInProgress)
	_, err := store.Tickets().Update(context.Background(), f.assigned.ID, repository.TicketUpdate{AssignedTo: &f.moderator.ID})
	require.NoError(t, err)
	return f
}

func TestTicketService_ListTickets_scopedByRole(t *testing.T) {
	f := newTicketScopeFixture(t)
	ctx := context.Background()

	all, err := f.svc.ListTickets(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, f.assigned.ID, all[0].ID, "newest first")

	mine, err := f.svc.ListTickets(ctx, f.moderator)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.assigned.ID, mine[0].ID)

	own, err := f.svc.ListTickets(ctx, f.user)
	require.NoError(t, err)
	assert.Len(t, own, 2, "both seeded tickets belong to user-1")

	none, err := f.svc.ListTickets(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTicketService_GetTicket_scopedByRole(t *testing.T) {
	f := newTicketScopeFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetTicket(ctx, f.admin, f.owned.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetTicket(ctx, f.moderator, f.owned.ID)
	requireStatus(t, err, http.StatusNotFound)

	got, err := f.svc.GetTicket(ctx, f.moderator, f.assigned.ID)
	require.NoError(t, err)
	assert.Equal(t, f.assigned.ID, got.ID)

	_, err = f.svc.GetTicket(ctx, f.other, f.owned.ID)
	requireStatus(t, err, http.StatusNotFound)

	_, err = f.svc.GetTicket(ctx, f.admin, "missing")
	requireStatus(t, err, http.StatusNotFound)
}

func TestTicketService_UpdateTicket(t *testing.T) {
	f := newTicketScopeFixture(t)
	ctx := context.Background()
	resolved := string(domain.TicketStatusResolved)
	solution := "  Restarted the VPN concentrator  "

	updated, err := f.svc.UpdateTicket(ctx, f.moderator, f.assigned.ID, TicketUpdateInput{Status: &resolved, Solution: &solution})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
	require.NotNil(t, updated.Solution)
	assert.Equal(t, "Restarted the VPN concentrator", *updated.Solution)

	_, err = f.svc.UpdateTicket(ctx, f.moderator, f.owned.ID, TicketUpdateInput{Status: &resolved})
	requireStatus(t, err, http.StatusNotFound)

	closed := string(domain.TicketStatusClosed)
	updated, err = f.svc.UpdateTicket(ctx, f.admin, f.owned.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, updated.Status)
}

func TestTicketService_UpdateTicket_rejections(t *testing.T) {
	f := newTicketScopeFixture(t)
	ctx := context.Background()
	bogus := "DONE"
	resolved := string(domain.TicketStatusResolved)

	_, err := f.svc.UpdateTicket(ctx, f.admin, f.owned.ID, TicketUpdateInput{Status: &bogus})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.UpdateTicket(ctx, f.user, f.owned.ID, TicketUpdateInput{Status: &resolved})
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.svc.UpdateTicket(ctx, f.user, f.owned.ID, TicketUpdateInput{Status: &bogus})
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.svc.UpdateTicket(ctx, f.admin, f.owned.ID, TicketUpdateInput{})
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.UpdateTicket(ctx, f.admin, "missing", TicketUpdateInput{Status: &resolved})
	requireStatus(t, err, http.StatusNotFound)
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) List(context.Context, repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, errors.New("pool exhausted")
}

func TestTicketService_ListTickets_storeError(t *testing.T) {
	svc := NewTicketService(TicketDependencies{TicketRepo: failingTickets{}})

	_, err := svc.ListTickets(context.Background(), &domain.User{ID: "admin-1", Role: domain.UserRoleAdmin})
	requireStatus(t, err, http.StatusInternalServerError)
}
