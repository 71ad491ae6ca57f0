package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Claims are the claims the auth server puts in access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns the subject, which is the user's ID.
func (c *Claims) UserID() string {
	return c.Subject
}

// VerifierConfig configures bearer token verification.
type VerifierConfig struct {
	// Secret verifies HS256 tokens. Empty disables HS256.
	Secret []byte

	// Keys resolves ES256 keys by kid. Nil disables ES256.
	Keys *KeyCache

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Audience, when set, must be present in the aud claim.
	Audience string
}

// Verifier validates bearer access tokens issued by the auth server.
type Verifier struct {
	secret []byte
	keys   *KeyCache
	opts   []jwt.ParserOption
}

// NewVerifier creates a verifier. At least one of Secret or Keys is required.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 && cfg.Keys == nil {
		return nil, errors.New("JWT secret or JWKS key cache required")
	}

	var methods []string
	if len(cfg.Secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.Keys != nil {
		methods = append(methods, jwt.SigningMethodES256.Alg())
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{secret: cfg.Secret, keys: cfg.Keys, opts: opts}, nil
}

// Verify parses and validates tokenString, returning its claims.
// Every failure is reported as ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return v.secret, nil
		case *jwt.SigningMethodECDSA:
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			return v.keys.Get(ctx, kid)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	}, v.opts...)
	if err != nil {
		log.Debug().Err(err).Msg("JWT verification failed")
		return nil, ErrUnauthorized
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*User, error)
}

// Authenticate verifies the token locally and returns the user it names.
func (v *Verifier) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := v.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return &User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// ProviderAuthenticator checks tokens with the identity provider on every
// call, so revoked sessions are rejected immediately.
type ProviderAuthenticator struct {
	Provider Provider
}

// Authenticate asks the provider who owns the token.
func (a ProviderAuthenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	user, err := a.Provider.GetUser(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return user, nil
}
