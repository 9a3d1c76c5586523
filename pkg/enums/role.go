package enums

import (
	"fmt"
	"strings"
)

// Role identifies who performed an action.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleGateway  Role = "gateway"
	RoleSystem   Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole only accepts roles that can be carried by an access token.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleCustomer:
		return RoleCustomer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("invalid role %q", value)
}
