package relay

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/identity"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("admin access required")
	ErrRateLimited  = errors.New("rate limit exceeded, please try again later")
	ErrBadRequest   = errors.New("invalid request")
)

// statusFor maps an error to the HTTP status returned to the caller.
// Upstream 429 and 402 pass through; every other upstream failure is a 500.
func statusFor(err error) int {
	var upstreamErr *client.UpstreamError
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, identity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &upstreamErr):
		switch upstreamErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusPaymentRequired:
			return upstreamErr.StatusCode
		}
	}
	return http.StatusInternalServerError
}

// messageFor returns the text placed in the error body.
func messageFor(err error) string {
	var upstreamErr *client.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.StatusCode {
		case http.StatusTooManyRequests:
			return "Upstream rate limit exceeded, please try again later."
		case http.StatusPaymentRequired:
			return "Payment required, please add credits to continue."
		default:
			return upstreamErr.Provider + " error"
		}
	}
	if errors.Is(err, identity.ErrUnauthorized) {
		return ErrUnauthorized.Error()
	}
	return err.Error()
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError logs err and writes {error} with the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logEvent := log.Warn()
	if status >= 500 {
		logEvent = log.Error()
	}
	logEvent.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Relay request failed")

	writeJSON(w, status, errorResponse{Error: messageFor(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
