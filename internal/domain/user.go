package domain

import (
	"strings"
	"time"
)

// UserRole enumerates account roles.
type UserRole string

const (
	UserRoleUser      UserRole = "user"
	UserRoleModerator UserRole = "moderator"
	UserRoleAdmin     UserRole = "admin"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleModerator, UserRoleAdmin:
		return true
	}
	return false
}

// User is an account that can submit tickets or, as moderator/admin, work them.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         UserRole
	Skills       []string
	CreatedAt    time.Time
}

// MatchesAnySkill reports whether any declared skill contains any of the
// wanted skills, ignoring case.
func MatchesAnySkill(declared, wanted []string) bool {
	for _, d := range declared {
		ld := strings.ToLower(d)
		for _, w := range wanted {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			if strings.Contains(ld, strings.ToLower(w)) {
				return true
			}
		}
	}
	return false
}
