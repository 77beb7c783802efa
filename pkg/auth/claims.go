package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Roles, in ascending order of privilege.
const (
	RoleViewer  = "risk:viewer"
	RoleAnalyst = "risk:analyst"
	RoleAdmin   = "risk:admin"
)

var roleRank = map[string]int{
	RoleViewer:  1,
	RoleAnalyst: 2,
	RoleAdmin:   3,
}

// Claims are the JWT claims accepted by riskd. The caller is identified by
// the registered subject.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// HasRole reports whether the claims carry role exactly.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAtLeast reports whether any carried role ranks at or above min. Unknown
// roles rank below every known one.
func (c Claims) HasAtLeast(min string) bool {
	want, ok := roleRank[min]
	if !ok {
		return c.HasRole(min)
	}
	for _, r := range c.Roles {
		if roleRank[r] >= want {
			return true
		}
	}
	return false
}
