// Package language tracks the display language and switches it when a user
// signs in or out.
package language

import (
	"sync"

	"github.com/wolfeidau/clientportal/internal/identity"
)

const (
	Korean  = "ko"
	English = "en"

	// DefaultAuthenticated is applied when a user signs in.
	DefaultAuthenticated = Korean

	// DefaultAnonymous is applied when a user signs out.
	DefaultAnonymous = English
)

// Supported reports whether lang is a display language the portal ships.
func Supported(lang string) bool {
	return lang == Korean || lang == English
}

// Preference holds the current display language.
type Preference struct {
	mu   sync.RWMutex
	lang string
}

// NewPreference creates a preference set to lang.
func NewPreference(lang string) *Preference {
	return &Preference{lang: lang}
}

// Get returns the current language.
func (p *Preference) Get() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.lang
}

// Set changes the current language.
func (p *Preference) Set(lang string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lang = lang
}

// Sync forces the language on sign-in and sign-out transitions. Only the
// presence of an identity matters: switching directly from one user to
// another leaves the language alone.
type Sync struct {
	pref          *Preference
	authenticated string
	anonymous     string

	mu       sync.Mutex
	previous string
}

// NewSync creates a sync that writes to pref. Empty languages fall back to
// DefaultAuthenticated and DefaultAnonymous.
func NewSync(pref *Preference, authenticated, anonymous string) *Sync {
	if authenticated == "" {
		authenticated = DefaultAuthenticated
	}
	if anonymous == "" {
		anonymous = DefaultAnonymous
	}
	return &Sync{pref: pref, authenticated: authenticated, anonymous: anonymous}
}

// Observe records the current identity ("" for none) and applies the
// language for an absent-to-present or present-to-absent transition.
func (s *Sync) Observe(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.previous
	s.previous = userID

	switch {
	case prev == "" && userID != "":
		s.pref.Set(s.authenticated)
	case prev != "" && userID == "":
		s.pref.Set(s.anonymous)
	}
}

// Attach subscribes the sync to auth state changes and returns the unsubscribe function.
func (s *Sync) Attach(client *identity.Client) func() {
	s.Observe(client.UserID())

	return client.Subscribe(func(ev identity.AuthEvent) {
		switch ev.Kind {
		case identity.SignedIn:
			s.Observe(ev.UserID)
		case identity.SignedOut:
			s.Observe("")
		}
	})
}
