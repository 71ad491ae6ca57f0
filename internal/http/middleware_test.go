package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:    "forwarded single",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.1"},
			want:    "192.168.1.1",
		},
		{
			name:    "forwarded chain takes first",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			want:    "203.0.113.1",
		},
		{
			name:    "forwarded padded",
			headers: map[string]string{"X-Forwarded-For": " 203.0.113.1  ,  198.51.100.1"},
			want:    "203.0.113.1",
		},
		{
			name:    "real ip",
			headers: map[string]string{"X-Real-IP": "192.168.1.100"},
			want:    "192.168.1.100",
		},
		{
			name:    "forwarded wins over real ip",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "192.168.1.100"},
			want:    "203.0.113.1",
		},
		{
			name:       "ipv4 remote addr",
			remoteAddr: "192.168.1.1:54321",
			want:       "192.168.1.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:54321",
			want:       "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.remoteAddr != "" {
				r.RemoteAddr = tt.remoteAddr
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			require.Equal(t, tt.want, ExtractClientIP(r))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var captured string
	handler := ClientIPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "203.0.113.1", captured)
	require.Empty(t, ClientIPFromContext(context.Background()))
}
