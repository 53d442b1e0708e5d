package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

func userRow(id string, role domain.UserRole, skills []string) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns).AddRow(id, id+"@helper.com", "hash", string(role), skills, time.Now())
}

func TestUserRepository_Create_duplicate(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("a@helper.com", "hash", "user", []string{}).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &domain.User{Email: "a@helper.com", PasswordHash: "hash"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepository_FindOne_skillModerator(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE role = \$1 AND EXISTS \(SELECT 1 FROM unnest\(skills\) AS s WHERE s ~\* \$2\) ORDER BY created_at ASC LIMIT 1`).
		WithArgs("moderator", `Authentication|C\+\+`).
		WillReturnRows(userRow("mod-1", domain.UserRoleModerator, []string{"authentication"}))

	user, err := repo.FindOne(context.Background(), UserQuery{
		Role:           domain.UserRoleModerator,
		SkillsMatchAny: []string{"Authentication", " ", "C++"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mod-1", user.ID)
	assert.Equal(t, domain.UserRoleModerator, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindOne_blankSkillsSkipQuery(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	_, err := repo.FindOne(context.Background(), UserQuery{Role: domain.UserRoleModerator, SkillsMatchAny: []string{"", "  "}})
	require.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindOne_roleOnly(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE role = \$1 ORDER BY created_at ASC LIMIT 1`).
		WithArgs("admin").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindOne(context.Background(), UserQuery{Role: domain.UserRoleAdmin})
	require.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`UPDATE users SET role = \$1, skills = \$2 WHERE id = \$3 RETURNING`).
		WithArgs("moderator", []string{"Billing"}, "u-1").
		WillReturnRows(userRow("u-1", domain.UserRoleModerator, []string{"Billing"}))

	role := domain.UserRoleModerator
	user, err := repo.Update(context.Background(), "u-1", UserUpdate{Role: &role, Skills: []string{"Billing"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Billing"}, user.Skills)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_List(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	rows := pgxmock.NewRows(userColumns).
		AddRow("u-1", "u-1@helper.com", "hash", "user", []string{}, time.Now()).
		AddRow("u-2", "u-2@helper.com", "hash", "admin", []string{"Ops"}, time.Now())
	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY created_at ASC`).WillReturnRows(rows)

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.UserRoleAdmin, users[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSkillPattern(t *testing.T) {
	assert.Equal(t, `a\.b|c`, skillPattern([]string{"a.b", "", " c "}))
	assert.Equal(t, "", skillPattern(nil))
}
