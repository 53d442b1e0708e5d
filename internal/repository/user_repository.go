package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/helperdesk/helper-tickets/internal/domain"
)

// UserQuery selects a single user. Zero fields are ignored.
type UserQuery struct {
	Role           domain.UserRole
	SkillsMatchAny []string
}

// UserUpdate is a partial update. Only non-nil fields are written.
type UserUpdate struct {
	Role   *domain.UserRole
	Skills []string
}

// UserRepository is the user directory.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, id string, update UserUpdate) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// FindOne returns the oldest user matching q, or pgx.ErrNoRows.
	FindOne(ctx context.Context, q UserQuery) (*domain.User, error)
}

var userColumns = []string{"id", "email", "password_hash", "role", "skills", "created_at"}

type userRepository struct {
	q Querier
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(q Querier) UserRepository {
	return &userRepository{q: q}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Role == "" {
		user.Role = domain.UserRoleUser
	}
	user.Skills = cloneStrings(user.Skills)

	query, args, err := psql.Insert("users").
		Columns("email", "password_hash", "role", "skills").
		Values(user.Email, user.PasswordHash, string(user.Role), user.Skills).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}

	if err := r.q.QueryRow(ctx, query, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

func (r *userRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user: %w", err)
	}
	return scanUser(r.q.QueryRow(ctx, query, args...))
}

func (r *userRepository) Update(ctx context.Context, id string, update UserUpdate) (*domain.User, error) {
	if update.Role == nil && update.Skills == nil {
		return r.GetByID(ctx, id)
	}

	builder := psql.Update("users").
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if update.Role != nil {
		builder = builder.Set("role", string(*update.Role))
	}
	if update.Skills != nil {
		builder = builder.Set("skills", cloneStrings(update.Skills))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update user: %w", err)
	}
	return scanUser(r.q.QueryRow(ctx, query, args...))
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users: %w", err)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) FindOne(ctx context.Context, q UserQuery) (*domain.User, error) {
	builder := psql.Select(userColumns...).
		From("users").
		OrderBy("created_at ASC").
		Limit(1)
	if q.Role != "" {
		builder = builder.Where(squirrel.Eq{"role": string(q.Role)})
	}
	if q.SkillsMatchAny != nil {
		pattern := skillPattern(q.SkillsMatchAny)
		if pattern == "" {
			return nil, pgx.ErrNoRows
		}
		builder = builder.Where(squirrel.Expr("EXISTS (SELECT 1 FROM unnest(skills) AS s WHERE s ~* ?)", pattern))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find user: %w", err)
	}
	return scanUser(r.q.QueryRow(ctx, query, args...))
}

// skillPattern builds a case-insensitive alternation of literal skill names.
func skillPattern(skills []string) string {
	parts := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(s))
	}
	return strings.Join(parts, "|")
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.Skills,
		&user.CreatedAt,
	); err != nil {
		return nil, mapReadError(err)
	}
	user.Role = domain.UserRole(role)
	if user.Skills == nil {
		user.Skills = []string{}
	}
	return &user, nil
}
