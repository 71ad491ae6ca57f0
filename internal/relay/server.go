// Package relay implements the HTTP functions that authenticate a caller
// and forward the request to an upstream AI, search or email provider.
package relay

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/ratelimit"
	"github.com/wolfeidau/clientportal/internal/store"
	"github.com/wolfeidau/clientportal/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChatStreamer starts a streamed chat completion.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []client.ChatMessage) (io.ReadCloser, error)
}

// Config holds the relay tunables.
type Config struct {
	ChatMaxRequests int
	ChatWindow      time.Duration
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.ChatMaxRequests == 0 {
		c.ChatMaxRequests = ratelimit.DefaultMaxRequests
	}
	if c.ChatWindow == 0 {
		c.ChatWindow = ratelimit.DefaultWindow
	}
}

// Deps are the collaborators the relays call.
type Deps struct {
	Auth       identity.Authenticator
	Limiter    *ratelimit.Limiter
	Chat       ChatStreamer
	Answerer   client.Answerer
	Stocks     store.StockStore
	News       store.NewsStore
	Profiles   store.ProfileStore
	Newsletter *NewsletterSender
}

// Server serves the relay endpoints.
type Server struct {
	Deps
	cfg       Config
	stockNews *StockNewsRefresher
	now       func() time.Time
}

// NewServer creates a relay server.
func NewServer(deps Deps, cfg Config) *Server {
	cfg.ApplyDefaults()

	return &Server{
		Deps:      deps,
		cfg:       cfg,
		stockNews: NewStockNewsRefresher(deps.Answerer, deps.Stocks),
		now:       time.Now,
	}
}

// Handler returns the relay routes with permissive CORS and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "/functions/chat", s.handleChat)
	s.route(mux, "/functions/news", s.handleNews)
	s.route(mux, "/functions/stock-news", s.handleStockNews)
	s.route(mux, "/functions/newsletter", s.handleNewsletter)

	return corsMiddleware(recoverMiddleware(mux))
}

// route registers POST for path and answers plain OPTIONS requests with an
// empty 200. Preflight requests are answered by the CORS middleware.
func (s *Server) route(mux *http.ServeMux, path string, h http.HandlerFunc) {
	name := path[len("/functions/"):]

	mux.HandleFunc("OPTIONS "+path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+path, func(w http.ResponseWriter, r *http.Request) {
		telemetry.GetMetrics().RelayRequestsTotal.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("relay", name)))
		h(w, r)
	})
}

// authenticate resolves the bearer token to a user.
func (s *Server) authenticate(r *http.Request) (*identity.User, error) {
	token := identity.BearerToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.Auth.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// fail records the error metric and writes the {error} body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, relay string, err error) {
	countError(r.Context(), relay)
	writeError(w, r, err)
}

func countError(ctx context.Context, relay string) {
	telemetry.GetMetrics().RelayErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("relay", relay)))
}

var corsAllowedHeaders = []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"}

// corsMiddleware sets the permissive CORS headers on every response, with or
// without an Origin header, and answers browser preflights through rs/cors.
func corsMiddleware(next http.Handler) http.Handler {
	preflight := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:       corsAllowedHeaders,
		MaxAge:               86400,
		OptionsSuccessStatus: http.StatusOK,
	}).Handler(next)

	allowHeaders := strings.Join(corsAllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		preflight.ServeHTTP(w, r)
	})
}

// recoverMiddleware turns a panic into a 500 so no invocation is left unanswered.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Relay handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
