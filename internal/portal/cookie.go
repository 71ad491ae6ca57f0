package portal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

const sessionCookieName = "_session"

// cookieData is the signed payload of the session cookie. It only names the
// browser session; everything else stays server side.
type cookieData struct {
	SessionID string    `json:"sid"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

type cookieCodec struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func newCookieCodec(secret []byte, ttl time.Duration, secure bool) (*cookieCodec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("cookie secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cookie TTL must be greater than 0")
	}
	return &cookieCodec{secret: secret, ttl: ttl, secure: secure, now: time.Now}, nil
}

// encode returns base64(json).base64(hmac).
func (c *cookieCodec) encode(sessionID string) (string, error) {
	now := c.now()
	data, err := json.Marshal(cookieData{SessionID: sessionID, IssuedAt: now, ExpiresAt: now.Add(c.ttl)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(data)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(c.sign(encoded)), nil
}

func (c *cookieCodec) decode(value string) (*cookieData, error) {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrInvalidSession
	}

	receivedSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, ErrInvalidSession
	}

	if !hmac.Equal(receivedSig, c.sign(encoded)) {
		log.Debug().Msg("Session cookie signature validation failed")
		return nil, ErrInvalidSession
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidSession
	}

	var data cookieData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, ErrInvalidSession
	}

	if c.now().After(data.ExpiresAt) {
		return nil, ErrExpiredSession
	}

	return &data, nil
}

func (c *cookieCodec) sign(encoded string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(encoded))
	return mac.Sum(nil)
}

// sessionID returns the browser session named by the request cookie.
func (c *cookieCodec) sessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", ErrInvalidSession
	}

	data, err := c.decode(cookie.Value)
	if err != nil {
		return "", err
	}
	return data.SessionID, nil
}

func (c *cookieCodec) set(w http.ResponseWriter, sessionID string) error {
	value, err := c.encode(sessionID)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.ttl.Seconds()),
	})
	return nil
}

func (c *cookieCodec) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
