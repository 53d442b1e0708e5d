package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/helperdesk/helper-tickets/internal/domain"
	"github.com/helperdesk/helper-tickets/internal/repository"
)

// MatchStrategy is one rung of the assignee search. Query returns false when
// the strategy does not apply to the given skills.
type MatchStrategy struct {
	Name  string
	Query func(skills []string) (repository.UserQuery, bool)
}

var (
	// SkillModeratorStrategy picks a moderator sharing at least one skill.
	SkillModeratorStrategy = MatchStrategy{
		Name: "skill-moderator",
		Query: func(skills []string) (repository.UserQuery, bool) {
			if domain.IsDefaultSkillSet(skills) {
				return repository.UserQuery{}, false
			}
			return repository.UserQuery{Role: domain.UserRoleModerator, SkillsMatchAny: skills}, true
		},
	}

	AnyModeratorStrategy = MatchStrategy{
		Name: "any-moderator",
		Query: func([]string) (repository.UserQuery, bool) {
			return repository.UserQuery{Role: domain.UserRoleModerator}, true
		},
	}

	AnyAdminStrategy = MatchStrategy{
		Name: "any-admin",
		Query: func([]string) (repository.UserQuery, bool) {
			return repository.UserQuery{Role: domain.UserRoleAdmin}, true
		},
	}
)

// DefaultMatchPolicy is skill-matched moderator, then any moderator, then any admin.
func DefaultMatchPolicy() []MatchStrategy {
	return []MatchStrategy{SkillModeratorStrategy, AnyModeratorStrategy, AnyAdminStrategy}
}

// ModeratorMatcher selects who should work a triaged ticket.
type ModeratorMatcher struct {
	users  repository.UserRepository
	policy []MatchStrategy
	logger *zap.Logger
}

// NewModeratorMatcher builds a matcher. An empty policy means DefaultMatchPolicy.
func NewModeratorMatcher(users repository.UserRepository, logger *zap.Logger, policy ...MatchStrategy) *ModeratorMatcher {
	if len(policy) == 0 {
		policy = DefaultMatchPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModeratorMatcher{users: users, policy: policy, logger: logger}
}

// FindAssignee walks the policy in order and returns the first match.
// It returns (nil, nil) when nobody is eligible.
func (m *ModeratorMatcher) FindAssignee(ctx context.Context, skills []string) (*domain.User, error) {
	for _, strategy := range m.policy {
		q, ok := strategy.Query(skills)
		if !ok {
			continue
		}
		user, err := m.users.FindOne(ctx, q)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", strategy.Name, err)
		}
		m.logger.Debug("assignee matched",
			zap.String("strategy", strategy.Name),
			zap.String("user_id", user.ID))
		return user, nil
	}
	return nil, nil
}
