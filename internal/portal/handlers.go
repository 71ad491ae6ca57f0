package portal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	httpmiddleware "github.com/wolfeidau/clientportal/internal/http"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/language"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/session"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type profileView struct {
	DisplayName string `json:"display_name"`
	Approved    bool   `json:"approved"`
	Admin       bool   `json:"admin"`
}

type meResponse struct {
	SignedIn bool         `json:"signed_in"`
	User     *userView    `json:"user,omitempty"`
	Profile  *profileView `json:"profile,omitempty"`
	Language string       `json:"language"`
	State    string       `json:"state"`
}

type signUpResponse struct {
	User                 userView `json:"user"`
	ConfirmationRequired bool     `json:"confirmation_required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, fmt.Errorf("%w: email and password are required", ErrBadRequest))
		return
	}

	bs, err := s.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Warn().Err(err).Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).Msg("Sign in failed")
		writeError(w, r, err)
		return
	}

	if err := s.cookies.set(w, bs.ID); err != nil {
		writeError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", bs.UserID()).
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Msg("User signed in")

	writeJSON(w, http.StatusOK, s.me(bs))
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, fmt.Errorf("%w: email and password are required", ErrBadRequest))
		return
	}

	bs, user, err := s.sessions.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if bs != nil {
		if err := s.cookies.set(w, bs.ID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	log.Info().Str("user_id", user.ID).Bool("confirmation_required", bs == nil).Msg("User signed up")

	writeJSON(w, http.StatusCreated, signUpResponse{
		User:                 userView{ID: user.ID, Email: user.Email},
		ConfirmationRequired: bs == nil,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	defer s.cookies.clear(w)

	id, err := s.cookies.sessionID(r)
	if err == nil {
		if err := s.sessions.SignOut(r.Context(), id); err != nil && !errors.Is(err, identity.ErrNotSignedIn) {
			log.Warn().Err(err).Msg("Sign out failed")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	bs, err := s.browserSession(r)
	if err != nil {
		writeJSON(w, http.StatusOK, meResponse{
			Language: s.sessions.cfg.AnonymousLanguage,
			State:    session.SignedOut.String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, s.me(bs))
}

func (s *Server) me(bs *BrowserSession) meResponse {
	resp := meResponse{
		Language: bs.Language.Get(),
		State:    bs.Monitor.State().String(),
	}

	if sess := bs.Client.Session(); sess != nil {
		resp.SignedIn = true
		resp.User = &userView{ID: sess.User.ID, Email: sess.User.Email}
	}
	if p := bs.Client.Profile(); p != nil {
		resp.Profile = &profileView{DisplayName: p.DisplayName, Approved: p.Approved, Admin: p.Admin}
	}
	return resp
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !language.Supported(req.Language) {
		writeError(w, r, fmt.Errorf("%w: unsupported language %q", ErrBadRequest, req.Language))
		return
	}

	bs := sessionFromContext(r.Context())
	bs.Language.Set(req.Language)

	writeJSON(w, http.StatusOK, languageRequest{Language: req.Language})
}

type activityRequest struct {
	Kind string `json:"kind"`
}

// handleActivity records a user interaction reported by the browser.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	kind, ok := session.ParseActivity(req.Kind)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: unknown activity %q", ErrBadRequest, req.Kind))
		return
	}

	sessionFromContext(r.Context()).Monitor.Activity(kind)
	w.WriteHeader(http.StatusNoContent)
}

type popupView struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ButtonText  string    `json:"button_text"`
	ButtonLink  *string   `json:"button_link,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
}

func newPopupView(p *models.PopupAd, lang string) popupView {
	v := popupView{
		ID:          p.PopupID,
		Title:       p.TitleKo,
		Description: p.DescriptionKo,
		ButtonText:  p.ButtonTextKo,
		ButtonLink:  p.ButtonLink,
		ImageURL:    p.ImageURL,
	}
	if lang == language.English {
		v.Title, v.Description, v.ButtonText = p.TitleEn, p.DescriptionEn, p.ButtonTextEn
	}
	return v
}

func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	bs := sessionFromContext(r.Context())

	selected := s.gate.Select(r.Context(), bs.UserID())
	if selected == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	telemetry.GetMetrics().PopupsShownTotal.Add(r.Context(), 1)
	writeJSON(w, http.StatusOK, newPopupView(selected, bs.Language.Get()))
}

func (s *Server) handleDismissPopup(w http.ResponseWriter, r *http.Request) {
	popupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid popup id", ErrBadRequest))
		return
	}

	bs := sessionFromContext(r.Context())
	if err := s.gate.Dismiss(r.Context(), bs.UserID(), popupID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	report, err := s.portfolio.Holdings(r.Context(), sessionFromContext(r.Context()).UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDistributions(w http.ResponseWriter, r *http.Request) {
	report, err := s.portfolio.Distributions(r.Context(), sessionFromContext(r.Context()).UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
