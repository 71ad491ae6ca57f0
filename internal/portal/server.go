// Package portal serves the signed-in dashboard API: sign-in and sign-out,
// the inactivity countdown, popups, language and portfolio data.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/clientportal/internal/http"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/popup"
	"github.com/wolfeidau/clientportal/internal/portfolio"
	"github.com/wolfeidau/clientportal/internal/session"
)

// DefaultCookieTTL bounds how long a browser keeps its session cookie.
const DefaultCookieTTL = 24 * time.Hour

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("invalid request")
)

// Config holds the portal HTTP settings.
type Config struct {
	CookieSecret   []byte
	CookieTTL      time.Duration
	SecureCookies  bool
	CORSOrigins    []string
	TrustedOrigins []string
}

// Server serves the portal routes.
type Server struct {
	sessions  *Registry
	gate      *popup.Gate
	portfolio *portfolio.Service
	cookies   *cookieCodec
	cfg       Config
}

// NewServer creates a portal server.
func NewServer(sessions *Registry, gate *popup.Gate, portfolioSvc *portfolio.Service, cfg Config) (*Server, error) {
	if cfg.CookieTTL == 0 {
		cfg.CookieTTL = DefaultCookieTTL
	}

	cookies, err := newCookieCodec(cfg.CookieSecret, cfg.CookieTTL, cfg.SecureCookies)
	if err != nil {
		return nil, err
	}

	return &Server{
		sessions:  sessions,
		gate:      gate,
		portfolio: portfolioSvc,
		cookies:   cookies,
		cfg:       cfg,
	}, nil
}

// Handler returns the portal routes with CORS, cross-origin protection and
// compression applied.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("GET /api/me", s.handleMe)
	mux.HandleFunc("PUT /api/language", s.requireSession(s.handleSetLanguage))
	mux.HandleFunc("POST /api/activity", s.requireSession(s.handleActivity))
	mux.HandleFunc("GET /api/popup", s.requireSession(s.handlePopup))
	mux.HandleFunc("POST /api/popup/{id}/dismiss", s.requireSession(s.handleDismissPopup))
	mux.HandleFunc("GET /api/holdings", s.requireSession(s.handleHoldings))
	mux.HandleFunc("GET /api/distributions", s.requireSession(s.handleDistributions))

	protection := csrf.New()
	for _, origin := range s.cfg.TrustedOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid trusted origin %q: %w", origin, err)
		}
	}

	handler := protection.Handler(httpmiddleware.ClientIPMiddleware()(gzhttp.GzipHandler(mux)))

	if len(s.cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	return handler, nil
}

type contextKey int

const browserSessionKey contextKey = iota

// requireSession resolves the cookie to a live, signed-in browser session
// and counts the request as activity.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bs, err := s.browserSession(r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("No browser session")
			s.cookies.clear(w)
			writeError(w, r, ErrUnauthorized)
			return
		}

		bs.Monitor.Activity(session.Request)

		ctx := context.WithValue(r.Context(), browserSessionKey, bs)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) browserSession(r *http.Request) (*BrowserSession, error) {
	id, err := s.cookies.sessionID(r)
	if err != nil {
		return nil, err
	}

	bs, ok := s.sessions.Get(id)
	if !ok || bs.UserID() == "" {
		return nil, ErrInvalidSession
	}
	return bs, nil
}

func sessionFromContext(ctx context.Context) *BrowserSession {
	bs, _ := ctx.Value(browserSessionKey).(*BrowserSession)
	return bs
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUserExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Portal request failed")
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
