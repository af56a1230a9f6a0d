package models

import (
	"slices"
	"strings"
	"time"
)

// Role names carried in access token claims.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// User is a back-office account. Roles are stored comma separated.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	RolesText    string    `db:"roles"`
	Disabled     bool      `db:"disabled"`
	CreatedAt    time.Time `db:"created_at"`
}

// Roles returns the user's roles. Every user has at least RoleUser.
func (u *User) Roles() []string {
	roles := []string{RoleUser}
	for _, r := range strings.Split(u.RolesText, ",") {
		r = strings.TrimSpace(r)
		if r != "" && !slices.Contains(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// JoinRoles encodes roles for the roles column.
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}
