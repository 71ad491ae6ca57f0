package portal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookieCodec(t *testing.T) {
	codec, err := newCookieCodec(secret, time.Hour, true)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return now }

	value, err := codec.encode("session-1")
	require.NoError(t, err)

	data, err := codec.decode(value)
	require.NoError(t, err)
	require.Equal(t, "session-1", data.SessionID)

	t.Run("tampered payload", func(t *testing.T) {
		other, err := codec.encode("session-2")
		require.NoError(t, err)

		payload, _, _ := strings.Cut(other, ".")
		_, sig, _ := strings.Cut(value, ".")

		_, err = codec.decode(payload + "." + sig)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("wrong secret", func(t *testing.T) {
		otherCodec, err := newCookieCodec([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, true)
		require.NoError(t, err)

		_, err = otherCodec.decode(value)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, v := range []string{"", "no-dot", "a.%%%"} {
			_, err := codec.decode(v)
			require.ErrorIs(t, err, ErrInvalidSession, v)
		}
	})

	t.Run("expired", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, err := codec.decode(value)
		require.ErrorIs(t, err, ErrExpiredSession)
	})
}

func TestNewCookieCodecValidation(t *testing.T) {
	_, err := newCookieCodec([]byte("short"), time.Hour, true)
	require.Error(t, err)

	_, err = newCookieCodec(secret, 0, true)
	require.Error(t, err)
}
