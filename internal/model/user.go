package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of access levels.
type Role string

// Roles.
const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
)

// ErrInvalidRole is returned for role values outside the known set.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole accepts both the legacy claim values (ADM, OPERADOR) and the
// canonical names.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADM", "ADMIN":
		return RoleAdmin, nil
	case "OPERADOR", "OPERATOR":
		return RoleOperator, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Claim returns the value carried in identity tokens.
func (r Role) Claim() string {
	if r == RoleAdmin {
		return "ADM"
	}
	return "OPERADOR"
}

// User is a registered platform user.
type User struct {
	ID        string    `json:"uid"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
