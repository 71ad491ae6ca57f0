package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// AuthServerConfig configures the auth server client.
type AuthServerConfig struct {
	// BaseURL is the auth server root, e.g. https://project.example.com/auth/v1.
	BaseURL string

	// APIKey is the project's public API key, sent as the apikey header.
	APIKey string

	Timeout time.Duration
}

// AuthServer implements Provider against a GoTrue-compatible auth server.
// Password sign-in uses the OAuth2 resource owner password grant on {BaseURL}/token.
type AuthServer struct {
	baseURL    string
	httpClient *http.Client
	oauth      *oauth2.Config
}

// NewAuthServer creates an auth server client.
func NewAuthServer(cfg AuthServerConfig) *AuthServer {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	return &AuthServer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &apiKeyTransport{apiKey: cfg.APIKey, base: http.DefaultTransport},
		},
		oauth: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// SignIn exchanges email and password for a session.
func (a *AuthServer) SignIn(ctx context.Context, email, password string) (*Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	token, err := a.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil &&
			(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	user, err := a.GetUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("user_id", user.ID).Msg("Signed in")

	return &Session{User: *user, Token: token}, nil
}

// SignUp registers a new account.
func (a *AuthServer) SignUp(ctx context.Context, email, password, displayName string) (*Session, *User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": displayName},
	}

	var resp struct {
		AccessToken  string    `json:"access_token"`
		TokenType    string    `json:"token_type"`
		ExpiresIn    int64     `json:"expires_in"`
		RefreshToken string    `json:"refresh_token"`
		User         *userJSON `json:"user"`
		userJSON
	}

	status, err := a.doJSON(ctx, http.MethodPost, "/signup", "", body, &resp)
	if err != nil {
		if status == http.StatusUnprocessableEntity || status == http.StatusConflict {
			return nil, nil, ErrUserExists
		}
		return nil, nil, fmt.Errorf("failed to sign up: %w", err)
	}

	// Without a confirmed email the server returns the bare user object.
	if resp.AccessToken == "" {
		user := resp.userJSON.toUser()
		return nil, &user, nil
	}

	if resp.User == nil {
		return nil, nil, errors.New("sign up response missing user")
	}

	user := resp.User.toUser()
	token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		TokenType:    resp.TokenType,
		RefreshToken: resp.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	return &Session{User: user, Token: token}, &user, nil
}

// SignOut invalidates the session server side.
func (a *AuthServer) SignOut(ctx context.Context, accessToken string) error {
	status, err := a.doJSON(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
	if err != nil {
		// An already-invalid token has nothing left to revoke.
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil
		}
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// GetUser resolves the user for an access token.
func (a *AuthServer) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u userJSON
	status, err := a.doJSON(ctx, http.MethodGet, "/user", accessToken, nil, &u)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.ID == "" {
		return nil, ErrUnauthorized
	}

	user := u.toUser()
	return &user, nil
}

func (a *AuthServer) doJSON(ctx context.Context, method, path, accessToken string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("auth server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

type userJSON struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u userJSON) toUser() User {
	return User{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type apiKeyTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("apikey", t.apiKey)
	return t.base.RoundTrip(req)
}
