package identity

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

// EventKind identifies an auth state change.
type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// AuthEvent is delivered to subscribers after every auth state change.
// Generation increases on every sign-in and sign-out.
type AuthEvent struct {
	Kind       EventKind
	UserID     string
	Generation uint64
	Forced     bool
}

type subscriber struct {
	id int
	fn func(AuthEvent)
}

const profileFetchTimeout = 10 * time.Second

// Client holds one browser's auth state: the current session, its cached
// profile and the subscribers interested in changes.
type Client struct {
	provider Provider
	profiles store.ProfileStore

	mu         sync.RWMutex
	session    *Session
	profile    *models.Profile
	generation uint64

	subsMu  sync.Mutex
	subs    []subscriber
	nextSub int

	loads sync.WaitGroup
}

// NewClient creates an auth state holder. profiles may be nil, in which
// case no profile is ever cached.
func NewClient(provider Provider, profiles store.ProfileStore) *Client {
	return &Client{
		provider: provider,
		profiles: profiles,
	}
}

// Subscribe registers fn for auth state changes and returns a function that
// removes it. Callbacks run synchronously, in subscription order, on the
// goroutine making the change.
func (c *Client) Subscribe(fn func(AuthEvent)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Session returns the current session, or nil when signed out.
func (c *Client) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.session
}

// Profile returns the cached profile. It may be nil while signed in.
func (c *Client) Profile() *models.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.profile == nil {
		return nil
	}
	clone := *c.profile
	return &clone
}

// UserID returns the signed-in user's ID, or "" when signed out.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.session == nil {
		return ""
	}
	return c.session.User.ID
}

// Generation returns the current session generation.
func (c *Client) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generation
}

// SignIn signs in with credentials and establishes the session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	c.establish(ctx, session)
	return session, nil
}

// SignUp registers an account and establishes the session when the provider
// returns one.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*Session, *User, error) {
	session, user, err := c.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, nil, err
	}

	if session != nil {
		c.establish(ctx, session)
	}
	return session, user, nil
}

// SignOut ends the session at the provider and clears local state. Local
// state is cleared even when the provider call fails.
func (c *Client) SignOut(ctx context.Context) error {
	return c.signOut(ctx, 0, false)
}

// ForceSignOut signs out on behalf of the system, but only if the session of
// the given generation is still the current one. Otherwise it returns
// ErrNotSignedIn and leaves the newer session untouched.
func (c *Client) ForceSignOut(ctx context.Context, generation uint64) error {
	return c.signOut(ctx, generation, true)
}

// Wait blocks until in-flight profile fetches finish.
func (c *Client) Wait() {
	c.loads.Wait()
}

func (c *Client) establish(ctx context.Context, session *Session) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.session = session
	c.profile = nil
	c.mu.Unlock()

	if c.profiles != nil {
		c.loads.Add(1)
		go c.loadProfile(context.WithoutCancel(ctx), gen, session.User.ID)
	}

	c.notify(AuthEvent{Kind: SignedIn, UserID: session.User.ID, Generation: gen})
}

func (c *Client) signOut(ctx context.Context, generation uint64, forced bool) error {
	c.mu.Lock()
	session := c.session
	if session == nil || (forced && c.generation != generation) {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	c.generation++
	gen := c.generation
	c.session = nil
	c.profile = nil
	c.mu.Unlock()

	var err error
	if c.provider != nil {
		err = c.provider.SignOut(ctx, session.AccessToken())
		if err != nil {
			log.Warn().Err(err).Str("user_id", session.User.ID).Msg("Provider sign out failed")
		}
	}

	c.notify(AuthEvent{Kind: SignedOut, UserID: session.User.ID, Generation: gen, Forced: forced})
	return err
}

// loadProfile fetches the profile and stores it only if no sign-in or
// sign-out happened in the meantime.
func (c *Client) loadProfile(ctx context.Context, gen uint64, userID string) {
	defer c.loads.Done()

	ctx, cancel := context.WithTimeout(ctx, profileFetchTimeout)
	defer cancel()

	profile, err := c.profiles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load profile")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		log.Debug().Str("user_id", userID).Msg("Discarding stale profile")
		return
	}
	c.profile = profile
}

func (c *Client) notify(ev AuthEvent) {
	c.subsMu.Lock()
	fns := make([]func(AuthEvent), 0, len(c.subs))
	for _, s := range c.subs {
		fns = append(fns, s.fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
