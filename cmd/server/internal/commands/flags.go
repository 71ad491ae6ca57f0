package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/relay"
	"github.com/wolfeidau/clientportal/internal/store"
	memorystore "github.com/wolfeidau/clientportal/internal/store/memory"
	postgresstore "github.com/wolfeidau/clientportal/internal/store/postgres"
)

// PostgresFlags configures the connection to the backend database.
type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"PORTAL_POSTGRES_CONNECTION_STRING"`

	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"PORTAL_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or PORTAL_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresFlags) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return pool, nil
}

// StoreFlags selects the data store.
type StoreFlags struct {
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"PORTAL_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

type stores struct {
	profiles   store.ProfileStore
	popups     store.PopupStore
	dismissals store.DismissalStore
	stocks     store.StockStore
	news       store.NewsStore
	portfolio  store.PortfolioStore
	close      func()
}

func (s *StoreFlags) open(ctx context.Context) (*stores, error) {
	switch s.StoreType {
	case "postgres":
		pool, err := s.Postgres.pool(ctx)
		if err != nil {
			return nil, err
		}

		if s.Postgres.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		popups := postgresstore.NewPopupStore(pool)
		news := postgresstore.NewNewsStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

		return &stores{
			profiles:   postgresstore.NewProfileStore(pool),
			popups:     popups,
			dismissals: popups,
			stocks:     news,
			news:       news,
			portfolio:  postgresstore.NewPortfolioStore(pool),
			close:      pool.Close,
		}, nil

	default:
		popups := memorystore.NewPopupStore()
		news := memorystore.NewNewsStore()
		log.Info().Msg("Using in-memory stores")

		return &stores{
			profiles:   memorystore.NewProfileStore(),
			popups:     popups,
			dismissals: popups,
			stocks:     news,
			news:       news,
			portfolio:  memorystore.NewPortfolioStore(),
			close:      func() {},
		}, nil
	}
}

const demoUserID = "00000000-0000-4000-8000-000000000001"

// AuthFlags configures the identity provider and bearer verification.
type AuthFlags struct {
	URL       string        `help:"auth server base URL" env:"PORTAL_AUTH_URL"`
	APIKey    string        `help:"project API key sent to the auth server" env:"PORTAL_AUTH_API_KEY"`
	JWTSecret string        `help:"HS256 secret for verifying access tokens locally" env:"PORTAL_AUTH_JWT_SECRET"`
	JWKSURL   string        `help:"JWKS URL for ES256 access tokens (defaults to {url}/.well-known/jwks.json)" env:"PORTAL_AUTH_JWKS_URL"`
	Issuer    string        `help:"required token issuer" env:"PORTAL_AUTH_ISSUER"`
	Audience  string        `help:"required token audience" default:"authenticated" env:"PORTAL_AUTH_AUDIENCE"`
	Verify    string        `help:"bearer verification (local or remote)" default:"local" enum:"local,remote" env:"PORTAL_AUTH_VERIFY"`
	CacheDir  string        `help:"directory for the JWKS HTTP cache, in memory when empty" default:"" env:"PORTAL_AUTH_CACHE_DIR"`
	Timeout   time.Duration `help:"auth server request timeout" default:"30s" env:"PORTAL_AUTH_TIMEOUT"`

	Memory       bool   `help:"use an in-process identity provider (development only)" default:"false" env:"PORTAL_AUTH_MEMORY"`
	DemoEmail    string `help:"demo account email for the in-process provider" default:"demo@example.com" env:"PORTAL_AUTH_DEMO_EMAIL"`
	DemoPassword string `help:"demo account password for the in-process provider" default:"" env:"PORTAL_AUTH_DEMO_PASSWORD"`
}

func (a *AuthFlags) Validate() error {
	if a.Memory {
		return nil
	}
	if a.URL == "" {
		return errors.New("auth server URL is required (--auth-url or PORTAL_AUTH_URL)")
	}
	return nil
}

// build returns the identity provider and the bearer authenticator.
func (a *AuthFlags) build() (identity.Provider, identity.Authenticator, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}

	if a.Memory {
		secret := []byte(a.JWTSecret)
		if len(secret) == 0 {
			secret = []byte("development-only-secret-not-for-production")
		}
		provider := identity.NewMemoryProvider(secret, a.Issuer, time.Hour)
		if a.DemoPassword != "" {
			provider.AddUser(identity.User{ID: demoUserID, Email: a.DemoEmail, Role: "authenticated"}, a.DemoPassword)
		}
		log.Warn().Msg("Using in-process identity provider. This should only be used in development!")
		return provider, identity.ProviderAuthenticator{Provider: provider}, nil
	}

	provider := identity.NewAuthServer(identity.AuthServerConfig{
		BaseURL: a.URL,
		APIKey:  a.APIKey,
		Timeout: a.Timeout,
	})

	if a.Verify == "remote" {
		return provider, identity.ProviderAuthenticator{Provider: provider}, nil
	}

	jwksURL := a.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimRight(a.URL, "/") + "/.well-known/jwks.json"
	}

	verifier, err := identity.NewVerifier(identity.VerifierConfig{
		Secret:   []byte(a.JWTSecret),
		Keys:     identity.NewKeyCache(jwksURL, client.NewCachingHTTPClient(a.CacheDir)),
		Issuer:   a.Issuer,
		Audience: a.Audience,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	return provider, verifier, nil
}

// UpstreamFlags configures the AI gateway and the search provider.
type UpstreamFlags struct {
	GatewayURL    string        `help:"OpenAI-compatible AI gateway base URL" env:"PORTAL_GATEWAY_URL"`
	GatewayKey    string        `help:"AI gateway API key" env:"PORTAL_GATEWAY_API_KEY"`
	GatewayModel  string        `help:"chat model" default:"google/gemini-2.5-flash" env:"PORTAL_GATEWAY_MODEL"`
	ChatPrompt    string        `help:"system prompt for the chat relay" env:"PORTAL_CHAT_SYSTEM_PROMPT"`
	StreamTimeout time.Duration `help:"bound on a streamed chat completion" default:"5m" env:"PORTAL_STREAM_TIMEOUT"`

	SearchProvider  string        `help:"search provider (perplexity or gemini)" default:"perplexity" enum:"perplexity,gemini" env:"PORTAL_SEARCH_PROVIDER"`
	PerplexityKey   string        `help:"Perplexity API key" env:"PORTAL_PERPLEXITY_API_KEY"`
	PerplexityModel string        `help:"Perplexity model" default:"sonar" env:"PORTAL_PERPLEXITY_MODEL"`
	GeminiKey       string        `help:"Gemini API key" env:"PORTAL_GEMINI_API_KEY"`
	GeminiModel     string        `help:"Gemini model" default:"gemini-2.5-flash" env:"PORTAL_GEMINI_MODEL"`
	AnswerTimeout   time.Duration `help:"bound on a search answer" default:"60s" env:"PORTAL_ANSWER_TIMEOUT"`
}

func (u *UpstreamFlags) gateway() *client.Gateway {
	prompt := u.ChatPrompt
	if prompt == "" {
		prompt = relay.ChatSystemPrompt
	}

	return client.NewGateway(client.GatewayConfig{
		BaseURL:      u.GatewayURL,
		APIKey:       u.GatewayKey,
		Model:        u.GatewayModel,
		SystemPrompt: prompt,
		Timeout:      u.StreamTimeout,
	})
}

func (u *UpstreamFlags) answerer(ctx context.Context) (client.Answerer, error) {
	switch u.SearchProvider {
	case "gemini":
		if u.GeminiKey == "" {
			return nil, errors.New("Gemini API key is required (--gemini-key or PORTAL_GEMINI_API_KEY)")
		}
		gemini, err := client.NewGeminiAnswerer(ctx, u.GeminiKey, u.GeminiModel, u.AnswerTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return gemini, nil

	default:
		if u.PerplexityKey == "" {
			return nil, errors.New("Perplexity API key is required (--perplexity-key or PORTAL_PERPLEXITY_API_KEY)")
		}
		return client.NewPerplexityClient(client.PerplexityConfig{
			APIKey:  u.PerplexityKey,
			Model:   u.PerplexityModel,
			Timeout: u.AnswerTimeout,
		}), nil
	}
}

// EmailFlags configures newsletter delivery.
type EmailFlags struct {
	ResendKey  string        `help:"Resend API key" env:"PORTAL_RESEND_API_KEY"`
	From       string        `help:"newsletter sender address" default:"newsletter@example.com" env:"PORTAL_EMAIL_FROM"`
	BatchSize  int           `help:"emails sent concurrently" default:"10" env:"PORTAL_EMAIL_BATCH_SIZE"`
	BatchPause time.Duration `help:"pause between batches" default:"1s" env:"PORTAL_EMAIL_BATCH_PAUSE"`
	MaxTries   uint          `help:"delivery attempts per email" default:"3" env:"PORTAL_EMAIL_MAX_TRIES"`
	Timeout    time.Duration `help:"bound on one email request" default:"60s" env:"PORTAL_EMAIL_TIMEOUT"`
}

func (e *EmailFlags) sender(s *stores) *relay.NewsletterSender {
	mailer := client.NewResendClient(client.ResendConfig{
		APIKey:   e.ResendKey,
		Timeout:  e.Timeout,
		MaxTries: e.MaxTries,
	})

	return relay.NewNewsletterSender(mailer, s.profiles, s.news, relay.NewsletterConfig{
		From:       e.From,
		BatchSize:  e.BatchSize,
		BatchPause: e.BatchPause,
	})
}
