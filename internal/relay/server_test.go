package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/identity"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/ratelimit"
	"github.com/wolfeidau/clientportal/internal/store/memory"
)

type fakeAnswerer struct {
	mu      sync.Mutex
	answer  *client.Answer
	err     error
	prompts []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, system, prompt string) (*client.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type fakeStreamer struct {
	body     string
	err      error
	messages []client.ChatMessage
}

func (f *fakeStreamer) StreamChat(ctx context.Context, messages []client.ChatMessage) (io.ReadCloser, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

type fakeMailer struct {
	mu          sync.Mutex
	failFor     map[string]bool
	sent        []string
	inFlight    int
	maxInFlight int
}

func (f *fakeMailer) Send(ctx context.Context, email *client.Email) (string, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if f.failFor[email.To] {
		return "", &client.UpstreamError{Provider: "resend", StatusCode: http.StatusUnprocessableEntity}
	}
	f.sent = append(f.sent, email.To)
	return uuid.NewString(), nil
}

type harness struct {
	server   *Server
	handler  http.Handler
	provider *identity.MemoryProvider
	profiles *memory.ProfileStore
	news     *memory.NewsStore
	answerer *fakeAnswerer
	chat     *fakeStreamer
	mailer   *fakeMailer
	user     identity.User
	token    string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	provider := identity.NewMemoryProvider([]byte("test-secret"), "test", time.Hour)
	user := identity.User{ID: uuid.NewString(), Email: "client@example.com", Role: "authenticated"}
	provider.AddUser(user, "password")

	token, _, err := provider.IssueToken(user)
	require.NoError(t, err)

	limiter := ratelimit.New(context.Background(), ratelimit.WithSweepInterval(0))
	t.Cleanup(limiter.Stop)

	h := &harness{
		provider: provider,
		profiles: memory.NewProfileStore(),
		news:     memory.NewNewsStore(),
		answerer: &fakeAnswerer{answer: &client.Answer{}},
		chat:     &fakeStreamer{},
		mailer:   &fakeMailer{failFor: map[string]bool{}},
		user:     user,
		token:    token,
	}

	h.server = NewServer(Deps{
		Auth:     identity.ProviderAuthenticator{Provider: provider},
		Limiter:  limiter,
		Chat:     h.chat,
		Answerer: h.answerer,
		Stocks:   h.news,
		News:     h.news,
		Profiles: h.profiles,
		Newsletter: NewNewsletterSender(h.mailer, h.profiles, h.news, NewsletterConfig{
			From:       "news@example.com",
			BatchPause: -1,
		}),
	}, cfg)
	h.handler = h.server.Handler()

	return h
}

func (h *harness) post(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRelayAuthentication(t *testing.T) {
	h := newHarness(t, Config{})

	paths := []string{"/functions/chat", "/functions/news", "/functions/stock-news", "/functions/newsletter"}

	for _, path := range paths {
		t.Run(path+" missing token", func(t *testing.T) {
			rec := h.post(t, path, "", `{}`)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			require.NotEmpty(t, decodeBody(t, rec)["error"])
		})

		t.Run(path+" invalid token", func(t *testing.T) {
			rec := h.post(t, path, "not-a-jwt", `{}`)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	t.Run("cors headers without an origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/functions/chat", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("revoked token", func(t *testing.T) {
		require.NoError(t, h.provider.SignOut(context.Background(), h.token))

		rec := h.post(t, "/functions/stock-news", h.token, `{}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRelayOptions(t *testing.T) {
	h := newHarness(t, Config{})

	t.Run("plain options", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/functions/chat", nil)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Body.String())
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "Authorization, X-Client-Info, Apikey, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/functions/news", nil)
		req.Header.Set("Origin", "https://portal.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Body.String())
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})
}

func TestChatRelay(t *testing.T) {
	t.Run("streams the upstream body", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.chat.body = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"

		rec := h.post(t, "/functions/chat", h.token, `{"messages":[{"role":"user","content":"Hello"}]}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, h.chat.body, rec.Body.String())
		require.Equal(t, []client.ChatMessage{{Role: "user", Content: "Hello"}}, h.chat.messages)
	})

	t.Run("rate limited per user", func(t *testing.T) {
		h := newHarness(t, Config{ChatMaxRequests: 2, ChatWindow: time.Minute})
		h.chat.body = "data: [DONE]\n\n"

		for range 2 {
			rec := h.post(t, "/functions/chat", h.token, `{"messages":[]}`)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := h.post(t, "/functions/chat", h.token, `{"messages":[]}`)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, ErrRateLimited.Error(), decodeBody(t, rec)["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newHarness(t, Config{})

		rec := h.post(t, "/functions/chat", h.token, `{"messages":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	tests := []struct {
		name   string
		status int
		want   int
	}{
		{name: "upstream rate limit", status: http.StatusTooManyRequests, want: http.StatusTooManyRequests},
		{name: "upstream payment required", status: http.StatusPaymentRequired, want: http.StatusPaymentRequired},
		{name: "upstream server error", status: http.StatusBadGateway, want: http.StatusInternalServerError},
		{name: "upstream bad request", status: http.StatusBadRequest, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.chat.err = &client.UpstreamError{Provider: "gateway", StatusCode: tt.status}

			rec := h.post(t, "/functions/chat", h.token, `{"messages":[]}`)
			require.Equal(t, tt.want, rec.Code)
			require.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}
}

func TestNewsRelay(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.answerer.answer = &client.Answer{Content: "Markets rallied.", Citations: []string{"https://example.com/a"}}

		rec := h.post(t, "/functions/news", h.token, "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["success"])
		require.Equal(t, "Markets rallied.", body["content"])
		require.Equal(t, []any{"https://example.com/a"}, body["citations"])
		require.Equal(t, []string{defaultNewsQuery}, h.answerer.prompts)

		stored := h.news.MarketNews()
		require.Len(t, stored, 1)
		require.Equal(t, "Markets rallied.", stored[0].Content)
	})

	t.Run("custom query", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.answerer.answer = &client.Answer{Content: "ok"}

		rec := h.post(t, "/functions/news", h.token, `{"query":"KOSPI today"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, []string{"KOSPI today"}, h.answerer.prompts)
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "upstream failure", err: &client.UpstreamError{Provider: "perplexity", StatusCode: http.StatusInternalServerError}, want: http.StatusInternalServerError},
		{name: "upstream rate limit", err: &client.UpstreamError{Provider: "perplexity", StatusCode: http.StatusTooManyRequests}, want: http.StatusInternalServerError},
		{name: "upstream payment required", err: &client.UpstreamError{Provider: "perplexity", StatusCode: http.StatusPaymentRequired}, want: http.StatusInternalServerError},
		{name: "network failure", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.answerer.err = tt.err

			rec := h.post(t, "/functions/news", h.token, "")

			require.Equal(t, tt.want, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, false, body["success"])
			require.NotEmpty(t, body["error"])
			require.Empty(t, h.news.MarketNews())
		})
	}
}

func TestStockNewsRelay(t *testing.T) {
	acme := &models.StockPick{StockPickID: uuid.New(), StockName: "Acme Corp", Ticker: "ACME", DisplayOrder: 1}
	globex := &models.StockPick{StockPickID: uuid.New(), StockName: "Globex", Ticker: "GLBX", DisplayOrder: 2}

	t.Run("replaces news for matched picks", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.news.AddPick(acme)
		h.news.AddPick(globex)
		h.answerer.answer = &client.Answer{
			Content:   "Here you go:\n```json\n[{\"stock_name\":\"Acme Corp\",\"bullets\":[\"A\",\"B\"]},{\"stock_name\":\"Initech\",\"bullets\":[\"X\"]}]\n```",
			Citations: []string{"https://example.com/acme"},
		}

		rec := h.post(t, "/functions/stock-news", h.token, `{}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["success"])
		require.Equal(t, float64(1), body["count"])

		rows, err := h.news.ListNews(context.Background())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, acme.StockPickID, rows[0].StockPickID)
		require.Equal(t, "Acme Corp", rows[0].StockName)
		require.Equal(t, []string{"A", "B"}, rows[0].NewsBullets)
		require.Equal(t, []string{"https://example.com/acme"}, rows[0].Citations)

		require.Len(t, h.answerer.prompts, 1)
		require.Contains(t, h.answerer.prompts[0], "Acme Corp, Globex")
	})

	t.Run("parse failure writes nothing", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.news.AddPick(acme)
		previous := []*models.StockPickNews{{NewsID: uuid.New(), StockPickID: acme.StockPickID, StockName: "Acme Corp", NewsBullets: []string{"old"}}}
		require.NoError(t, h.news.ReplaceNews(context.Background(), previous))
		h.answerer.answer = &client.Answer{Content: "Sorry, I could not find any news."}

		rec := h.post(t, "/functions/stock-news", h.token, `{}`)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotEmpty(t, decodeBody(t, rec)["error"])

		rows, err := h.news.ListNews(context.Background())
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, []string{"old"}, rows[0].NewsBullets)
	})

	t.Run("no picks", func(t *testing.T) {
		h := newHarness(t, Config{})

		rec := h.post(t, "/functions/stock-news", h.token, `{}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, float64(0), decodeBody(t, rec)["count"])
		require.Empty(t, h.answerer.prompts)
	})

	t.Run("upstream payment required", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.news.AddPick(acme)
		h.answerer.err = &client.UpstreamError{Provider: "perplexity", StatusCode: http.StatusPaymentRequired}

		rec := h.post(t, "/functions/stock-news", h.token, `{}`)
		require.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}

func TestMatchStockNews(t *testing.T) {
	acme := &models.StockPick{StockPickID: uuid.New(), StockName: "Acme Corp"}
	globex := &models.StockPick{StockPickID: uuid.New(), StockName: "Globex"}
	fetched := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	rows := matchStockNews(
		[]*models.StockPick{acme, globex},
		[]StockNewsEntry{
			{StockName: " acme corp ", Bullets: []string{"first"}},
			{StockName: "Acme Corp", Bullets: []string{"duplicate"}},
			{StockName: "GLOBEX"},
		},
		nil,
		fetched,
	)

	require.Len(t, rows, 2)
	require.Equal(t, acme.StockPickID, rows[0].StockPickID)
	require.Equal(t, []string{"first"}, rows[0].NewsBullets)
	require.Equal(t, "Globex", rows[1].StockName)
	require.Equal(t, []string{}, rows[1].NewsBullets)
	require.Equal(t, fetched, rows[1].FetchedAt)
}

func TestNewsletterRelay(t *testing.T) {
	addRecipients := func(h *harness, n int) {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range n {
			h.profiles.Put(&models.Profile{
				UserID:    uuid.NewString(),
				Email:     "client" + string(rune('a'+i)) + "@example.com",
				Approved:  true,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
		}
		h.profiles.Put(&models.Profile{UserID: uuid.NewString(), Approved: true, CreatedAt: base})
		h.profiles.Put(&models.Profile{UserID: uuid.NewString(), Email: "pending@example.com", CreatedAt: base})
	}

	t.Run("requires admin", func(t *testing.T) {
		h := newHarness(t, Config{})

		rec := h.post(t, "/functions/newsletter", h.token, `{"subject":"Hi","htmlContent":"<p>Hi</p>"}`)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, ErrForbidden.Error(), decodeBody(t, rec)["error"])
		require.Empty(t, h.mailer.sent)
	})

	t.Run("validates body", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.profiles.GrantRole(h.user.ID, models.RoleAdmin)

		for _, body := range []string{`{"htmlContent":"<p>Hi</p>"}`, `{"subject":"Hi"}`, `{"subject":"  ","htmlContent":"x"}`, `nope`} {
			rec := h.post(t, "/functions/newsletter", h.token, body)
			require.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})

	t.Run("sends in batches and skips failures", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.profiles.GrantRole(h.user.ID, models.RoleAdmin)
		addRecipients(h, 23)
		h.mailer.failFor["clientc@example.com"] = true

		newsletterID := uuid.New()
		h.news.AddNewsletter(&models.Newsletter{NewsletterID: newsletterID, Subject: "March"})

		rec := h.post(t, "/functions/newsletter", h.token,
			`{"subject":"March","htmlContent":"<p>Update</p>","newsletterId":"`+newsletterID.String()+`"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, true, body["success"])
		require.Equal(t, float64(22), body["sentCount"])
		require.Equal(t, float64(23), body["totalRecipients"])

		require.Len(t, h.mailer.sent, 22)
		require.NotContains(t, h.mailer.sent, "pending@example.com")
		require.LessOrEqual(t, h.mailer.maxInFlight, DefaultBatchSize)

		stored, ok := h.news.Newsletter(newsletterID)
		require.True(t, ok)
		require.NotNil(t, stored.SentAt)
		require.Equal(t, 22, stored.RecipientCount)
	})

	t.Run("unknown newsletter id is not fatal", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.profiles.GrantRole(h.user.ID, models.RoleAdmin)
		addRecipients(h, 1)

		rec := h.post(t, "/functions/newsletter", h.token,
			`{"subject":"Hi","htmlContent":"<p>Hi</p>","newsletterId":"`+uuid.NewString()+`"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, float64(1), decodeBody(t, rec)["sentCount"])
	})
}

func TestNewsletterSenderCancelledBetweenBatches(t *testing.T) {
	profiles := memory.NewProfileStore()
	for i := range 3 {
		profiles.Put(&models.Profile{UserID: uuid.NewString(), Email: string(rune('a'+i)) + "@example.com", Approved: true})
	}
	mailer := &fakeMailer{failFor: map[string]bool{}}

	sender := NewNewsletterSender(mailer, profiles, memory.NewNewsStore(), NewsletterConfig{BatchSize: 2, BatchPause: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := sender.Send(ctx, &Newsletter{Subject: "Hi", HTML: "<p>Hi</p>"})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, mailer.sent, 2)
}

func TestRecoverMiddleware(t *testing.T) {
	handler := corsMiddleware(recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/functions/chat", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "internal error", decodeBody(t, rec)["error"])
}
