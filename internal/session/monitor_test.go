package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/clientportal/internal/identity"
)

type fakeTask struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTask) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler fires tasks when Advance moves its clock past their deadline.
type fakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTask{at: s.now + d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTask
	for _, t := range s.tasks {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (s *fakeScheduler) Last() *fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[len(s.tasks)-1]
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type harness struct {
	client    *identity.Client
	scheduler *fakeScheduler
	monitor   *Monitor
	expired   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	provider := identity.NewMemoryProvider([]byte("test-secret-key-min-32-bytes-long"), "test", time.Hour)
	provider.AddUser(identity.User{ID: "user-a", Email: "a@example.com"}, "pw")
	provider.AddUser(identity.User{ID: "user-b", Email: "b@example.com"}, "pw")

	h := &harness{
		client:    identity.NewClient(provider, nil),
		scheduler: &fakeScheduler{},
	}
	h.monitor = NewMonitor(h.client,
		WithScheduler(h.scheduler),
		WithExpiryHook(func(userID string) { h.expired = append(h.expired, userID) }),
	)
	t.Cleanup(h.monitor.Close)

	return h
}

func (h *harness) signIn(t *testing.T, email string) {
	t.Helper()
	_, err := h.client.SignIn(context.Background(), email, "pw")
	require.NoError(t, err)
}

func TestMonitor_ExpiresAfterTimeout(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")
	require.Equal(t, Active, h.monitor.State())

	h.scheduler.Advance(DefaultTimeout - time.Second)
	require.Empty(t, h.expired)
	require.NotNil(t, h.client.Session())

	h.scheduler.Advance(time.Second)
	require.Equal(t, []string{"user-a"}, h.expired)
	require.Nil(t, h.client.Session())
	require.Equal(t, ExpiredSignedOut, h.monitor.State())

	h.scheduler.Advance(3 * DefaultTimeout)
	require.Len(t, h.expired, 1, "exactly one forced sign-out")
	require.Zero(t, h.scheduler.Pending())
}

func TestMonitor_ActivityPostponesExpiry(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	h.scheduler.Advance(30 * time.Minute)
	h.monitor.Activity(PointerMove)
	require.Equal(t, 1, h.scheduler.Pending())

	h.scheduler.Advance(DefaultTimeout - time.Second)
	require.Empty(t, h.expired, "expiry is measured from the last activity")

	h.monitor.Activity(KeyDown)
	h.scheduler.Advance(DefaultTimeout - time.Second)
	require.Empty(t, h.expired)

	h.scheduler.Advance(time.Second)
	require.Equal(t, []string{"user-a"}, h.expired)
}

func TestMonitor_ManualSignOutCancelsCountdown(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	h.scheduler.Advance(10 * time.Minute)
	require.NoError(t, h.client.SignOut(context.Background()))
	require.Equal(t, SignedOut, h.monitor.State())
	require.Zero(t, h.scheduler.Pending())

	h.scheduler.Advance(2 * DefaultTimeout)
	require.Empty(t, h.expired)
}

func TestMonitor_ActivityIgnoredWhileSignedOut(t *testing.T) {
	h := newHarness(t)

	h.monitor.Activity(Click)
	require.Zero(t, h.scheduler.Pending())
	require.Equal(t, Idle, h.monitor.State())
}

func TestMonitor_LateTimerDoesNotAffectNextUser(t *testing.T) {
	h := newHarness(t)

	h.signIn(t, "a@example.com")
	stale := h.scheduler.Last()

	require.NoError(t, h.client.SignOut(context.Background()))
	h.signIn(t, "b@example.com")

	// Simulate a timer that fired concurrently with its cancellation.
	stale.f()

	require.Empty(t, h.expired)
	require.Equal(t, "user-b", h.client.UserID())
	require.Equal(t, Active, h.monitor.State())

	h.scheduler.Advance(DefaultTimeout)
	require.Equal(t, []string{"user-b"}, h.expired)
}

func TestMonitor_SupersededTimerIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	first := h.scheduler.Last()
	h.monitor.Activity(Scroll)

	first.f()
	require.Empty(t, h.expired)
	require.Equal(t, "user-a", h.client.UserID())
}

func TestMonitor_Close(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "a@example.com")

	h.monitor.Close()
	require.Zero(t, h.scheduler.Pending())

	h.scheduler.Advance(2 * DefaultTimeout)
	require.Empty(t, h.expired)

	require.NoError(t, h.client.SignOut(context.Background()))
	h.signIn(t, "b@example.com")
	require.Zero(t, h.scheduler.Pending(), "closed monitor no longer arms")

	h.monitor.Close()
}

func TestMonitor_RealScheduler(t *testing.T) {
	provider := identity.NewMemoryProvider([]byte("test-secret-key-min-32-bytes-long"), "test", time.Hour)
	provider.AddUser(identity.User{ID: "user-a", Email: "a@example.com"}, "pw")
	client := identity.NewClient(provider, nil)

	expired := make(chan string, 1)
	m := NewMonitor(client,
		WithTimeout(20*time.Millisecond),
		WithExpiryHook(func(userID string) { expired <- userID }),
	)
	defer m.Close()

	_, err := client.SignIn(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)

	select {
	case userID := <-expired:
		require.Equal(t, "user-a", userID)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not expire")
	}

	require.Nil(t, client.Session())
}

func TestParseActivity(t *testing.T) {
	for _, name := range []string{"pointerdown", "pointermove", "keydown", "scroll", "touchstart", "click", "request"} {
		kind, ok := ParseActivity(name)
		require.True(t, ok, name)
		require.Equal(t, ActivityKind(name), kind)
	}

	_, ok := ParseActivity("resize")
	require.False(t, ok)
}
