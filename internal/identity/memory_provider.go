package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// MemoryProvider implements Provider in memory, issuing HS256 tokens signed
// with a shared secret. It is for development and tests only.
type MemoryProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration

	mu       sync.Mutex
	accounts map[string]*memoryAccount // email -> account
	revoked  map[string]bool           // access token -> revoked
}

type memoryAccount struct {
	user     User
	password string
}

// NewMemoryProvider creates a provider whose tokens verify with secret.
func NewMemoryProvider(secret []byte, issuer string, ttl time.Duration) *MemoryProvider {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &MemoryProvider{
		secret:   secret,
		issuer:   issuer,
		ttl:      ttl,
		accounts: make(map[string]*memoryAccount),
		revoked:  make(map[string]bool),
	}
}

// AddUser registers an account directly.
func (p *MemoryProvider) AddUser(user User, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accounts[user.Email] = &memoryAccount{user: user, password: password}
}

// SignIn checks the password and issues a token.
func (p *MemoryProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()

	if !ok || acct.password != password {
		return nil, ErrInvalidCredentials
	}

	return p.newSession(acct.user)
}

// SignUp creates the account and signs it in immediately.
func (p *MemoryProvider) SignUp(ctx context.Context, email, password, displayName string) (*Session, *User, error) {
	p.mu.Lock()
	if _, exists := p.accounts[email]; exists {
		p.mu.Unlock()
		return nil, nil, ErrUserExists
	}
	user := User{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      "authenticated",
		CreatedAt: time.Now().UTC(),
	}
	p.accounts[email] = &memoryAccount{user: user, password: password}
	p.mu.Unlock()

	session, err := p.newSession(user)
	if err != nil {
		return nil, nil, err
	}
	return session, &user, nil
}

// SignOut revokes the token.
func (p *MemoryProvider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.revoked[accessToken] = true
	return nil
}

// GetUser verifies the token and returns its account.
func (p *MemoryProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	p.mu.Lock()
	revoked := p.revoked[accessToken]
	p.mu.Unlock()

	if revoked {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrUnauthorized
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[claims.Email]
	if !ok || acct.user.ID != claims.Subject {
		return nil, ErrUnauthorized
	}

	user := acct.user
	return &user, nil
}

// IssueToken signs an access token for user.
func (p *MemoryProvider) IssueToken(user User) (string, time.Time, error) {
	if len(p.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret not configured")
	}

	now := time.Now()
	expiry := now.Add(p.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    p.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Email: user.Email,
		Role:  user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

func (p *MemoryProvider) newSession(user User) (*Session, error) {
	token, expiry, err := p.IssueToken(user)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:  user,
		Token: &oauth2.Token{AccessToken: token, TokenType: "bearer", Expiry: expiry},
	}, nil
}
