package portal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/language"
	"github.com/wolfeidau/clientportal/internal/session"
	"github.com/wolfeidau/clientportal/internal/store"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

// BrowserSession is the per-browser state: who is signed in, the inactivity
// countdown and the display language.
type BrowserSession struct {
	ID       string
	Client   *identity.Client
	Monitor  *session.Monitor
	Language *language.Preference

	detach func()
}

// UserID returns the signed-in user or "".
func (b *BrowserSession) UserID() string {
	return b.Client.UserID()
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	IdleTimeout           time.Duration
	AuthenticatedLanguage string
	AnonymousLanguage     string
	Scheduler             session.Scheduler
}

// Registry owns the live browser sessions.
type Registry struct {
	provider identity.Provider
	profiles store.ProfileStore
	cfg      RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*BrowserSession
}

// NewRegistry creates an empty registry.
func NewRegistry(provider identity.Provider, profiles store.ProfileStore, cfg RegistryConfig) *Registry {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = session.DefaultTimeout
	}
	if cfg.AuthenticatedLanguage == "" {
		cfg.AuthenticatedLanguage = language.DefaultAuthenticated
	}
	if cfg.AnonymousLanguage == "" {
		cfg.AnonymousLanguage = language.DefaultAnonymous
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = session.RealScheduler{}
	}

	return &Registry{
		provider: provider,
		profiles: profiles,
		cfg:      cfg,
		sessions: make(map[string]*BrowserSession),
	}
}

// SignIn opens a browser session for the credentials.
func (r *Registry) SignIn(ctx context.Context, email, password string) (*BrowserSession, error) {
	bs := r.open()

	if _, err := bs.Client.SignIn(ctx, email, password); err != nil {
		bs.close()
		return nil, err
	}

	r.add(bs)
	return bs, nil
}

// SignUp registers an account. When the provider requires email confirmation
// no browser session is opened and only the user is returned.
func (r *Registry) SignUp(ctx context.Context, email, password, displayName string) (*BrowserSession, *identity.User, error) {
	bs := r.open()

	sess, user, err := bs.Client.SignUp(ctx, email, password, displayName)
	if err != nil {
		bs.close()
		return nil, nil, err
	}

	if sess == nil {
		bs.close()
		return nil, user, nil
	}

	r.add(bs)
	return bs, user, nil
}

// Get returns the live session with the given ID.
func (r *Registry) Get(id string) (*BrowserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bs, ok := r.sessions[id]
	return bs, ok
}

// SignOut ends the session at the provider and forgets it.
func (r *Registry) SignOut(ctx context.Context, id string) error {
	bs, ok := r.remove(id)
	if !ok {
		return identity.ErrNotSignedIn
	}

	err := bs.Client.SignOut(ctx)
	bs.close()
	return err
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Close stops every countdown and forgets all sessions. Tokens are left
// valid at the provider.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*BrowserSession)
	r.mu.Unlock()

	for _, bs := range sessions {
		bs.close()
		bs.Client.Wait()
		telemetry.GetMetrics().ActiveSessions.Add(ctx, -1)
	}

	log.Debug().Int("sessions", len(sessions)).Msg("Closed browser sessions")
}

func (r *Registry) open() *BrowserSession {
	bs := &BrowserSession{
		ID:       uuid.NewString(),
		Client:   identity.NewClient(r.provider, r.profiles),
		Language: language.NewPreference(r.cfg.AnonymousLanguage),
	}

	langSync := language.NewSync(bs.Language, r.cfg.AuthenticatedLanguage, r.cfg.AnonymousLanguage)
	bs.detach = langSync.Attach(bs.Client)

	bs.Monitor = session.NewMonitor(bs.Client,
		session.WithTimeout(r.cfg.IdleTimeout),
		session.WithScheduler(r.cfg.Scheduler),
		session.WithExpiryHook(func(userID string) {
			telemetry.GetMetrics().ForcedSignOutsTotal.Add(context.Background(), 1)
			if expired, ok := r.remove(bs.ID); ok {
				expired.close()
			}
		}),
	)

	return bs
}

func (r *Registry) add(bs *BrowserSession) {
	r.mu.Lock()
	r.sessions[bs.ID] = bs
	r.mu.Unlock()

	telemetry.GetMetrics().ActiveSessions.Add(context.Background(), 1)
}

func (r *Registry) remove(id string) (*BrowserSession, bool) {
	r.mu.Lock()
	bs, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		telemetry.GetMetrics().ActiveSessions.Add(context.Background(), -1)
	}
	return bs, ok
}

func (b *BrowserSession) close() {
	b.Monitor.Close()
	b.detach()
}
