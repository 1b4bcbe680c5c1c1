// Package auth reads identity out of the bearer credential handed to the
// chat client. Tokens are not verified here; the server does that.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hilthontt/quizchat/internal/domain"
	"github.com/hilthontt/quizchat/internal/infrastructure/wire"
)

var ErrNoUserClaim = errors.New("token carries no user id claim")

var (
	userClaims     = []string{"user_id", "userId", "uid", "sub"}
	usernameClaims = []string{"preferred_username", "username"}
	fullNameClaims = []string{"name", "full_name", "fullName"}
	avatarClaims   = []string{"picture", "avatar"}
)

// UserIDFromToken extracts the numeric user id from a JWT without verifying
// its signature.
func UserIDFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}

	for _, name := range userClaims {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		id, err := wire.ParseWideInt(raw)
		if err != nil || id == 0 {
			continue
		}
		return id, nil
	}

	return 0, ErrNoUserClaim
}

// Display fills the empty fields of self from the token's profile claims.
// Fields already set in self win. An unparsable token leaves self as is.
func Display(token string, self domain.UserDisplay) domain.UserDisplay {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return self
	}

	if self.Username == "" {
		self.Username = stringClaim(claims, usernameClaims)
	}
	if self.FullName == "" {
		self.FullName = stringClaim(claims, fullNameClaims)
	}
	if self.Avatar == nil {
		if avatar := stringClaim(claims, avatarClaims); avatar != "" {
			self.Avatar = &avatar
		}
	}
	return self
}

func stringClaim(claims jwt.MapClaims, names []string) string {
	for _, name := range names {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
