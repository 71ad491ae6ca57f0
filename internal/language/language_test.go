package language

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/clientportal/internal/identity"
)

func TestSync_Observe(t *testing.T) {
	tests := []struct {
		name         string
		initial      string
		observations []string
		setBetween   string
		want         string
	}{
		{
			name:         "absent to present sets authenticated language",
			initial:      English,
			observations: []string{"", "user-a"},
			want:         Korean,
		},
		{
			name:         "present to absent sets anonymous language",
			initial:      Korean,
			observations: []string{"user-a", ""},
			want:         English,
		},
		{
			name:         "repeated identity has no effect",
			initial:      English,
			observations: []string{"user-a", "user-a"},
			setBetween:   English,
			want:         English,
		},
		{
			name:         "switching users without sign out is a no-op",
			initial:      English,
			observations: []string{"user-a", "user-b"},
			setBetween:   English,
			want:         English,
		},
		{
			name:         "repeated absence has no effect",
			initial:      Korean,
			observations: []string{"", ""},
			want:         Korean,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := NewPreference(tt.initial)
			s := NewSync(pref, "", "")

			s.Observe(tt.observations[0])
			if tt.setBetween != "" {
				pref.Set(tt.setBetween)
			}
			s.Observe(tt.observations[1])

			require.Equal(t, tt.want, pref.Get())
		})
	}
}

func TestSync_AuthenticatedLanguageAppliedOnce(t *testing.T) {
	pref := NewPreference(English)
	s := NewSync(pref, "", "")

	s.Observe("user-a")
	require.Equal(t, Korean, pref.Get())

	// A user who picks English after signing in keeps it.
	pref.Set(English)
	s.Observe("user-a")
	require.Equal(t, English, pref.Get())
}

func TestSync_CustomLanguages(t *testing.T) {
	pref := NewPreference("")
	s := NewSync(pref, English, Korean)

	s.Observe("user-a")
	require.Equal(t, English, pref.Get())

	s.Observe("")
	require.Equal(t, Korean, pref.Get())
}

func TestSync_Attach(t *testing.T) {
	ctx := context.Background()
	provider := identity.NewMemoryProvider([]byte("test-secret-key-min-32-bytes-long"), "test", time.Hour)
	provider.AddUser(identity.User{ID: "user-a", Email: "a@example.com"}, "pw")
	client := identity.NewClient(provider, nil)

	pref := NewPreference(English)
	unsubscribe := NewSync(pref, "", "").Attach(client)
	defer unsubscribe()

	_, err := client.SignIn(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, Korean, pref.Get())

	require.NoError(t, client.SignOut(ctx))
	require.Equal(t, English, pref.Get())
}

func TestSupported(t *testing.T) {
	require.True(t, Supported(Korean))
	require.True(t, Supported(English))
	require.False(t, Supported("fr"))
}
