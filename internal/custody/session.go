package custody

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// SessionClaims are the claims the sign-in flow puts into the session token.
type SessionClaims struct {
	OrganizationID string `json:"organization_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Session is the active client handle issued by the sign-in flow. The token
// is verified by the provider on every call; locally it is only inspected
// for expiry.
type Session struct {
	Token  string
	Claims SessionClaims
}

// ParseSession reads a bearer token. An empty or unparsable token means the
// user is not authenticated.
func ParseSession(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	var claims SessionClaims
	if _, _, err := new(jwt.Parser).ParseUnverified(token, &claims); err != nil {
		return nil, errors.Wrap(ErrNotAuthenticated, err.Error())
	}
	return &Session{Token: token, Claims: claims}, nil
}

// Active reports whether the session can still be used at now.
func (s *Session) Active(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	return s.Claims.VerifyExpiresAt(now, false)
}
