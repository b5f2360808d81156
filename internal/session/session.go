// Package session carries the authenticated portal user through a request.
// Tokens are issued by the portal's auth service; this package only
// verifies them (HS256 with a shared secret) and exposes the claims.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSession    = errors.New("no session")
	ErrForbidden    = errors.New("forbidden")
)

// Session is the current user as seen by the chat: who is speaking and in
// which role.
type Session struct {
	UserID string
	Name   string
	Role   types.ChatRole
}

// CanAccess reports whether s may read or write the conversation of
// clientID. Support staff reach every conversation; a user only their own,
// whose client id is their user id.
func (s Session) CanAccess(clientID string) bool {
	return s.Role == types.RoleAdmin || (clientID != "" && s.UserID == clientID)
}

// Claims are the JWT claims issued by the portal's auth service. The
// subject is the user id.
type Claims struct {
	Name string         `json:"name"`
	Role types.ChatRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Parse verifies tokenString and returns the session it describes.
// Tokens without a role are treated as USER.
func Parse(tokenString, secret string) (Session, error) {
	if secret == "" {
		return Session{}, fmt.Errorf("%w: no signing key configured", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}

	role := claims.Role
	switch role {
	case types.RoleUser, types.RoleAdmin:
	case "":
		role = types.RoleUser
	default:
		return Session{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	return Session{UserID: claims.Subject, Name: claims.Name, Role: role}, nil
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
