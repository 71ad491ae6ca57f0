package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

type chatRequest struct {
	Messages []client.ChatMessage `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.fail(w, r, "chat", err)
		return
	}

	if !s.Limiter.Allow(user.ID, s.cfg.ChatMaxRequests, s.cfg.ChatWindow) {
		telemetry.GetMetrics().RateLimitedTotal.Add(r.Context(), 1)
		s.fail(w, r, "chat", ErrRateLimited)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, "chat", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	body, err := s.Chat.StreamChat(r.Context(), req.Messages)
	if err != nil {
		s.fail(w, r, "chat", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	n, err := copyFlush(w, body)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		log.Warn().Err(err).Str("user_id", user.ID).Int64("bytes", n).Msg("Chat stream interrupted")
		return
	}

	log.Debug().Str("user_id", user.ID).Int64("bytes", n).Msg("Chat stream finished")
}

// copyFlush copies src to w, flushing after every read so events reach the
// caller as they arrive.
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, 4096)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
