// Package client holds the HTTP clients for the upstream providers the
// relays call: the AI gateway, search answer providers and transactional email.
package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultAnswerTimeout bounds search/answer and email calls.
	DefaultAnswerTimeout = 60 * time.Second

	// DefaultStreamTimeout bounds a whole streamed chat completion.
	DefaultStreamTimeout = 5 * time.Minute
)

// UpstreamError is a non-2xx response from a provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the call may succeed.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newUpstreamError drains up to 4KiB of resp's body into an UpstreamError.
func newUpstreamError(provider string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &UpstreamError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
