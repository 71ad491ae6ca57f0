package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/clientportal/internal/logger"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/popup"
	"github.com/wolfeidau/clientportal/internal/portal"
	"github.com/wolfeidau/clientportal/internal/portfolio"
	"github.com/wolfeidau/clientportal/internal/ratelimit"
	"github.com/wolfeidau/clientportal/internal/relay"
	"github.com/wolfeidau/clientportal/internal/session"
	memorystore "github.com/wolfeidau/clientportal/internal/store/memory"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"PORTAL_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"PORTAL_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"PORTAL_TLS_KEY"`

	// Portal configuration
	CookieSecret   string        `help:"secret for signing session cookies (at least 32 bytes)" env:"PORTAL_COOKIE_SECRET"`
	CookieTTL      time.Duration `help:"session cookie lifetime" default:"24h" env:"PORTAL_COOKIE_TTL"`
	SecureCookies  bool          `help:"mark session cookies Secure" default:"true" negatable:"" env:"PORTAL_SECURE_COOKIES"`
	CORSOrigins    []string      `help:"allowed CORS origins for the portal API" env:"PORTAL_CORS_ORIGINS"`
	TrustedOrigins []string      `help:"origins allowed to make cross-origin state changing requests" env:"PORTAL_TRUSTED_ORIGINS"`

	IdleTimeout       time.Duration `help:"sign out after this much inactivity" default:"10m" env:"PORTAL_IDLE_TIMEOUT"`
	LanguageSignedIn  string        `help:"language applied on sign in" default:"ko" enum:"ko,en" env:"PORTAL_LANGUAGE_SIGNED_IN"`
	LanguageSignedOut string        `help:"language applied on sign out" default:"en" enum:"ko,en" env:"PORTAL_LANGUAGE_SIGNED_OUT"`
	TimeZone          string        `help:"time zone used for popup date windows" default:"Asia/Seoul" env:"PORTAL_TIME_ZONE"`

	// Relay configuration
	ChatMaxRequests int           `help:"chat requests allowed per user per window" default:"20" env:"PORTAL_CHAT_MAX_REQUESTS"`
	ChatWindow      time.Duration `help:"chat rate limit window" default:"60s" env:"PORTAL_CHAT_WINDOW"`

	// Observability
	Tracing        bool          `help:"enable tracing" default:"false" env:"PORTAL_TRACING"`
	SampleRatio    float64       `help:"trace sampling ratio" default:"1.0" env:"PORTAL_TRACE_SAMPLE_RATIO"`
	Environment    string        `help:"deployment environment reported with telemetry" default:"" env:"PORTAL_ENVIRONMENT"`
	MetricInterval time.Duration `help:"metric export interval" default:"30s" env:"PORTAL_METRIC_INTERVAL"`

	Store    StoreFlags    `embed:""`
	Auth     AuthFlags     `embed:"" prefix:"auth-"`
	Upstream UpstreamFlags `embed:""`
	Email    EmailFlags    `embed:"" prefix:"email-"`
}

func (c *ServeCmd) Validate() error {
	if len(c.CookieSecret) < 32 {
		return errors.New("cookie secret must be at least 32 bytes (--cookie-secret or PORTAL_COOKIE_SECRET)")
	}
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be provided together (--cert and --key)")
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:    "clientportal-server",
			Version:        globals.Version,
			Environment:    c.Environment,
			SampleRatio:    c.SampleRatio,
			MetricInterval: c.MetricInterval,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	provider, authenticator, err := c.Auth.build()
	if err != nil {
		return err
	}
	if c.Auth.Memory && c.Auth.DemoPassword != "" {
		seedDemoProfile(stores, c.Auth.DemoEmail)
	}

	answerer, err := c.Upstream.answerer(ctx)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(ctx)
	defer limiter.Stop()

	relayServer := relay.NewServer(relay.Deps{
		Auth:       authenticator,
		Limiter:    limiter,
		Chat:       c.Upstream.gateway(),
		Answerer:   answerer,
		Stocks:     stores.stocks,
		News:       stores.news,
		Profiles:   stores.profiles,
		Newsletter: c.Email.sender(stores),
	}, relay.Config{
		ChatMaxRequests: c.ChatMaxRequests,
		ChatWindow:      c.ChatWindow,
	})

	loc, err := popup.LoadLocation(c.TimeZone)
	if err != nil {
		return err
	}

	registry := portal.NewRegistry(provider, stores.profiles, portal.RegistryConfig{
		IdleTimeout:           c.IdleTimeout,
		AuthenticatedLanguage: c.LanguageSignedIn,
		AnonymousLanguage:     c.LanguageSignedOut,
		Scheduler:             session.RealScheduler{},
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Close(closeCtx)
	}()

	portalServer, err := portal.NewServer(
		registry,
		popup.NewGate(stores.popups, stores.dismissals, popup.WithLocation(loc)),
		portfolio.NewService(stores.portfolio),
		portal.Config{
			CookieSecret:   []byte(c.CookieSecret),
			CookieTTL:      c.CookieTTL,
			SecureCookies:  c.SecureCookies,
			CORSOrigins:    c.CORSOrigins,
			TrustedOrigins: c.TrustedOrigins,
		})
	if err != nil {
		return fmt.Errorf("failed to create portal server: %w", err)
	}

	portalHandler, err := portalServer.Handler()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/functions/", relayServer.Handler())
	mux.Handle("/", portalHandler)

	var handler http.Handler = logger.NewRequests(log).Handler(mux)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "clientportal")
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// seedDemoProfile gives the in-process demo account an approved profile when
// the in-memory store is in use.
func seedDemoProfile(s *stores, email string) {
	profiles, ok := s.profiles.(*memorystore.ProfileStore)
	if !ok {
		return
	}

	now := time.Now()
	profiles.Put(&models.Profile{
		UserID:            demoUserID,
		Email:             email,
		DisplayName:       "Demo",
		PreferredLanguage: "ko",
		Approved:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}
