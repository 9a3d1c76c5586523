package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
)

var (
	ErrMissingUser = errors.New("token missing user_id")
	ErrBadRole     = errors.New("token role not accepted")
)

// AccessTokenPayload is what a minted token says about its bearer.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the JWT presented by shoppers and admins. The gateway
// role never travels in a bearer token.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt.Parser calls it.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	return checkRole(c.Role)
}

func checkRole(role enums.Role) error {
	if _, err := enums.ParseRole(string(role)); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRole, err)
	}
	return nil
}
