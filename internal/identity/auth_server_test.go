package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAuthServer mimics the subset of the auth server API used by AuthServer.
func fakeAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "anon-key", r.Header.Get("apikey"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))

		if r.PostForm.Get("username") != "one@example.com" || r.PostForm.Get("password") != "pw" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600,"refresh_token":"ref-1"}`))
	})

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-1","email":"one@example.com","role":"authenticated","created_at":"2025-01-01T00:00:00Z"}`))
	})

	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /signup", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string            `json:"email"`
			Data  map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch body.Email {
		case "taken@example.com":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"msg":"User already registered"}`))
		case "confirm@example.com":
			_, _ = w.Write([]byte(`{"id":"user-2","email":"confirm@example.com"}`))
		default:
			require.Equal(t, "New User", body.Data["display_name"])
			_, _ = w.Write([]byte(`{"access_token":"tok-3","token_type":"bearer","expires_in":3600,"user":{"id":"user-3","email":"new@example.com"}}`))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthServer_SignIn(t *testing.T) {
	srv := fakeAuthServer(t)
	a := NewAuthServer(AuthServerConfig{BaseURL: srv.URL + "/", APIKey: "anon-key"})
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		session, err := a.SignIn(ctx, "one@example.com", "pw")
		require.NoError(t, err)
		require.Equal(t, "user-1", session.User.ID)
		require.Equal(t, "tok-1", session.AccessToken())
		require.Equal(t, "ref-1", session.Token.RefreshToken)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		session, err := a.SignIn(ctx, "one@example.com", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Nil(t, session)
	})
}

func TestAuthServer_GetUser(t *testing.T) {
	srv := fakeAuthServer(t)
	a := NewAuthServer(AuthServerConfig{BaseURL: srv.URL, APIKey: "anon-key"})
	ctx := context.Background()

	user, err := a.GetUser(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "one@example.com", user.Email)
	require.Equal(t, 2025, user.CreatedAt.Year())

	_, err = a.GetUser(ctx, "bogus")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthServer_SignOut(t *testing.T) {
	srv := fakeAuthServer(t)
	a := NewAuthServer(AuthServerConfig{BaseURL: srv.URL, APIKey: "anon-key"})
	ctx := context.Background()

	require.NoError(t, a.SignOut(ctx, "tok-1"))
	require.NoError(t, a.SignOut(ctx, "already-invalid"))
}

func TestAuthServer_SignUp(t *testing.T) {
	srv := fakeAuthServer(t)
	a := NewAuthServer(AuthServerConfig{BaseURL: srv.URL, APIKey: "anon-key"})
	ctx := context.Background()

	t.Run("immediate session", func(t *testing.T) {
		session, user, err := a.SignUp(ctx, "new@example.com", "pw", "New User")
		require.NoError(t, err)
		require.NotNil(t, session)
		require.Equal(t, "user-3", user.ID)
		require.Equal(t, "tok-3", session.AccessToken())
	})

	t.Run("confirmation required", func(t *testing.T) {
		session, user, err := a.SignUp(ctx, "confirm@example.com", "pw", "New User")
		require.NoError(t, err)
		require.Nil(t, session)
		require.Equal(t, "user-2", user.ID)
	})

	t.Run("already registered", func(t *testing.T) {
		_, _, err := a.SignUp(ctx, "taken@example.com", "pw", "New User")
		require.ErrorIs(t, err, ErrUserExists)
	})
}
