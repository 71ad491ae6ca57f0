// Package session signs users out after a period without activity.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/identity"
)

// DefaultTimeout is the inactivity budget before a forced sign-out.
const DefaultTimeout = time.Hour

// ActivityKind is a user interaction that counts as activity.
type ActivityKind string

const (
	PointerDown ActivityKind = "pointerdown"
	PointerMove ActivityKind = "pointermove"
	KeyDown     ActivityKind = "keydown"
	Scroll      ActivityKind = "scroll"
	TouchStart  ActivityKind = "touchstart"
	Click       ActivityKind = "click"

	// Request is reported for every authenticated server request.
	Request ActivityKind = "request"
)

// ParseActivity maps an interaction name to its kind.
func ParseActivity(s string) (ActivityKind, bool) {
	switch k := ActivityKind(s); k {
	case PointerDown, PointerMove, KeyDown, Scroll, TouchStart, Click, Request:
		return k, true
	}
	return "", false
}

// State is the monitor's state.
type State int

const (
	// Idle means no session has been observed yet.
	Idle State = iota
	Active
	ExpiredSignedOut
	SignedOut
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case ExpiredSignedOut:
		return "expired_signed_out"
	case SignedOut:
		return "signed_out"
	default:
		return "idle"
	}
}

// AuthState is the subset of identity.Client the monitor depends on.
type AuthState interface {
	Subscribe(fn func(identity.AuthEvent)) func()
	ForceSignOut(ctx context.Context, generation uint64) error
}

// Monitor restarts a countdown on every activity signal and forces a
// sign-out when the countdown expires.
type Monitor struct {
	auth      AuthState
	scheduler Scheduler
	timeout   time.Duration
	onExpire  func(userID string)

	mu         sync.Mutex
	state      State
	userID     string
	generation uint64
	task       Task
	armed      uint64
	closed     bool

	unsubscribe func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTimeout sets the inactivity budget.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithScheduler replaces the runtime timer, mainly for tests.
func WithScheduler(s Scheduler) Option {
	return func(m *Monitor) {
		m.scheduler = s
	}
}

// WithExpiryHook registers a function called after each forced sign-out.
func WithExpiryHook(fn func(userID string)) Option {
	return func(m *Monitor) {
		m.onExpire = fn
	}
}

// NewMonitor attaches a monitor to auth. It arms on every sign-in and
// disarms on every sign-out until Close is called.
func NewMonitor(auth AuthState, opts ...Option) *Monitor {
	m := &Monitor{
		auth:      auth,
		scheduler: RealScheduler{},
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.unsubscribe = auth.Subscribe(m.handleAuthEvent)

	return m
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Activity restarts the countdown. It is ignored while no session is active.
func (m *Monitor) Activity(kind ActivityKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.state != Active {
		return
	}

	m.armLocked()
}

// Close cancels the pending countdown and detaches from auth state changes.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelLocked()
	m.mu.Unlock()

	m.unsubscribe()
}

func (m *Monitor) handleAuthEvent(ev identity.AuthEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.generation = ev.Generation

	switch ev.Kind {
	case identity.SignedIn:
		m.userID = ev.UserID
		m.state = Active
		m.armLocked()

	case identity.SignedOut:
		m.cancelLocked()
		m.userID = ""
		if ev.Forced {
			m.state = ExpiredSignedOut
		} else {
			m.state = SignedOut
		}
	}
}

// armLocked replaces any pending countdown with a fresh one bound to the
// current generation.
func (m *Monitor) armLocked() {
	m.cancelLocked()

	m.armed++
	gen, seq := m.generation, m.armed
	m.task = m.scheduler.AfterFunc(m.timeout, func() {
		m.expire(gen, seq)
	})
}

func (m *Monitor) cancelLocked() {
	if m.task != nil {
		m.task.Stop()
		m.task = nil
	}
}

// expire runs on the scheduler's goroutine. A countdown that was replaced,
// cancelled, or armed for an earlier session does nothing.
func (m *Monitor) expire(gen, seq uint64) {
	m.mu.Lock()
	if m.closed || m.state != Active || m.generation != gen || m.armed != seq {
		m.mu.Unlock()
		return
	}
	userID := m.userID
	m.task = nil
	m.mu.Unlock()

	log.Info().Str("user_id", userID).Dur("timeout", m.timeout).Msg("Session expired after inactivity")

	// ForceSignOut delivers a SignedOut event back to handleAuthEvent,
	// so the lock must not be held here. The generation check inside it
	// protects a session that started after the lock was released.
	if err := m.auth.ForceSignOut(context.Background(), gen); err != nil {
		if errors.Is(err, identity.ErrNotSignedIn) {
			return
		}
		log.Warn().Err(err).Str("user_id", userID).Msg("Forced sign out failed")
	}

	if m.onExpire != nil {
		m.onExpire(userID)
	}
}
