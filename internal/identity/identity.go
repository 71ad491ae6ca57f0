// Package identity talks to the identity provider: credential sign-in,
// sign-up and sign-out, bearer token verification, and the per-browser
// auth state that other components subscribe to.
package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrUserExists         = errors.New("user already registered")
)

// User is the identity provider's view of an account.
type User struct {
	ID        string
	Email     string
	Role      string
	CreatedAt time.Time
}

// Session is the application's transient copy of a provider session.
// A non-nil Session always carries a non-empty User.ID.
type Session struct {
	User  User
	Token *oauth2.Token
}

// AccessToken returns the bearer credential for the session.
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

// Provider is the identity provider collaborator.
type Provider interface {
	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers an account. The returned session is nil when the
	// provider requires email confirmation before the first sign-in.
	SignUp(ctx context.Context, email, password, displayName string) (*Session, *User, error)

	// SignOut invalidates the session identified by accessToken.
	SignOut(ctx context.Context, accessToken string) error

	// GetUser resolves the user that owns accessToken.
	GetUser(ctx context.Context, accessToken string) (*User, error)
}
