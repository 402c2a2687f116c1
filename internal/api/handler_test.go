package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"consciousness-forge/baseline"
	"consciousness-forge/config"
	"consciousness-forge/internal/app"
	"consciousness-forge/keys"
	"consciousness-forge/models"
	"consciousness-forge/services"

	"github.com/google/uuid"
)

const testAPIKey = "sk-ant-test-0123456789"

// testConfig returns a test configuration
func testConfig() *config.Config {
	return config.NewTestConfig()
}

// testRouter creates a Chi router around the given app
func testRouter(application *app.App) http.Handler {
	cfg := testConfig()
	handler := NewHandler(application, cfg)
	return NewRouter(handler, cfg)
}

// proxyApp wires an App whose Anthropic service points at url
func proxyApp(t *testing.T, url string, key string) *app.App {
	t.Helper()
	cfg := testConfig()
	cfg.Anthropic.MessagesURL = url
	svc := services.NewAnthropicService(cfg, keys.NewCredential(key))
	return app.New(cfg, nil, svc, nil)
}

// mockRepo provides canned sessions for handler tests
type mockRepo struct {
	sessions []models.BaselineSession
	byID     map[uuid.UUID]*models.BaselineSession
}

func (m *mockRepo) Close()                           {}
func (m *mockRepo) Health(ctx context.Context) error { return nil }
func (m *mockRepo) SaveSession(ctx context.Context, session *models.BaselineSession) error {
	return nil
}
func (m *mockRepo) GetSessions(ctx context.Context, limit int) ([]models.BaselineSession, error) {
	if limit > 0 && limit < len(m.sessions) {
		return m.sessions[:limit], nil
	}
	return m.sessions, nil
}
func (m *mockRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.BaselineSession, error) {
	return m.byID[id], nil
}

// mockRunner returns a fixed session
type mockRunner struct {
	session *models.BaselineSession
	err     error
}

func (m *mockRunner) RunWithModel(ctx context.Context, model string, probeIDs []string) (*models.BaselineSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.session != nil {
		return m.session, nil
	}
	return models.NewBaselineSession("anthropic", model), nil
}

func (m *mockRunner) WriteArtifact(session *models.BaselineSession, path string) error {
	return nil
}

func TestHandler_ForgePage(t *testing.T) {
	t.Run("serves page at /consciousness-forge", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", ""))

		req := httptest.NewRequest(http.MethodGet, "/consciousness-forge", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		contentType := w.Header().Get("Content-Type")
		if !strings.Contains(contentType, "text/html") {
			t.Errorf("expected Content-Type text/html, got %s", contentType)
		}
		if !strings.Contains(w.Body.String(), "Consciousness Forge") {
			t.Error("expected body to contain the page title")
		}
	})

	t.Run("serves page at root", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", ""))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("served without a credential", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", ""))

		req := httptest.NewRequest(http.MethodGet, "/consciousness-forge", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected page without credential, got %d", w.Code)
		}
	})

	t.Run("page never embeds the credential", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", testAPIKey))

		req := httptest.NewRequest(http.MethodGet, "/consciousness-forge", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if strings.Contains(w.Body.String(), testAPIKey) {
			t.Error("credential leaked into the page")
		}
	})
}

func TestHandler_ProxyMessages(t *testing.T) {
	t.Run("relays upstream response verbatim", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-Api-Key"); got != testAPIKey {
				t.Errorf("expected credential header upstream, got %q", got)
			}
			if got := r.Header.Get("Anthropic-Version"); got != "2023-06-01" {
				t.Errorf("expected version header upstream, got %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"content":[{"type":"text","text":"hello"}]}`))
		}))
		defer upstream.Close()

		router := testRouter(proxyApp(t, upstream.URL, testAPIKey))

		body := `{"model":"claude-sonnet-4-20250514","max_tokens":1000,"messages":[{"role":"user","content":"hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if w.Body.String() != `{"content":[{"type":"text","text":"hello"}]}` {
			t.Errorf("expected verbatim upstream body, got %s", w.Body.String())
		}
	})

	t.Run("relays upstream errors verbatim", func(t *testing.T) {
		upstreamBody := `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(upstreamBody))
		}))
		defer upstream.Close()

		router := testRouter(proxyApp(t, upstream.URL, testAPIKey))

		req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages",
			strings.NewReader(`{"messages":[]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusTooManyRequests {
			t.Errorf("expected status 429 relayed, got %d", w.Code)
		}
		if w.Body.String() != upstreamBody {
			t.Errorf("expected verbatim upstream error body, got %s", w.Body.String())
		}
	})

	t.Run("invalid JSON rejected without upstream call", func(t *testing.T) {
		var calls atomic.Int64
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer upstream.Close()

		router := testRouter(proxyApp(t, upstream.URL, testAPIKey))

		for _, body := range []string{"", "{not json", `"just a string"`} {
			req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("body %q: expected status 400, got %d", body, w.Code)
			}
		}
		if calls.Load() != 0 {
			t.Errorf("expected no upstream calls, got %d", calls.Load())
		}
	})

	t.Run("messages must be a list", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", testAPIKey))

		for _, body := range []string{`{}`, `{"messages":"hi"}`, `{"messages":{"role":"user"}}`} {
			req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("body %q: expected status 400, got %d", body, w.Code)
			}

			var resp map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("body %q: error response is not JSON: %v", body, err)
			}
			if resp["error"] == "" {
				t.Errorf("body %q: expected error field", body)
			}
		}
	})

	t.Run("missing credential returns 500 without upstream call", func(t *testing.T) {
		var calls atomic.Int64
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer upstream.Close()

		router := testRouter(proxyApp(t, upstream.URL, ""))

		req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages",
			strings.NewReader(`{"messages":[]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", w.Code)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no upstream calls, got %d", calls.Load())
		}

		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("error response is not JSON: %v", err)
		}
		if resp["error"] == "" {
			t.Error("expected error field")
		}
	})

	t.Run("transport failure returns generic 502", func(t *testing.T) {
		// Unroutable upstream
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", testAPIKey))

		req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages",
			strings.NewReader(`{"messages":[]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", w.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("error response is not JSON: %v", err)
		}
		if resp["error"] != "upstream request failed" {
			t.Errorf("expected generic error category, got %q", resp["error"])
		}
		if strings.Contains(w.Body.String(), "127.0.0.1:1") {
			t.Error("transport error leaked connection details")
		}
	})

	t.Run("credential never appears in error responses", func(t *testing.T) {
		router := testRouter(proxyApp(t, "http://127.0.0.1:1", testAPIKey))

		for _, body := range []string{"{not json", `{"messages":[]}`} {
			req := httptest.NewRequest(http.MethodPost, "/api/anthropic/messages", strings.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if strings.Contains(w.Body.String(), testAPIKey) {
				t.Errorf("body %q: credential leaked into response", body)
			}
		}
	})
}

func TestHandler_Health(t *testing.T) {
	router := testRouter(proxyApp(t, "http://127.0.0.1:1", testAPIKey))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("health response is not JSON: %v", err)
	}

	servicesMap, ok := health["services"].(map[string]interface{})
	if !ok {
		t.Fatal("expected services map in health response")
	}
	if servicesMap["database"] != "not_configured" {
		t.Errorf("expected database not_configured, got %v", servicesMap["database"])
	}
	if servicesMap["anthropic"] != "configured" {
		t.Errorf("expected anthropic configured, got %v", servicesMap["anthropic"])
	}
	if _, ok := health["circuit_breakers"]; !ok {
		t.Error("expected circuit breaker status in health response")
	}
	if strings.Contains(w.Body.String(), testAPIKey) {
		t.Error("credential leaked into health response")
	}
}

func TestHandler_RunBaseline(t *testing.T) {
	t.Run("runs and returns session", func(t *testing.T) {
		cfg := testConfig()
		svc := services.NewAnthropicService(cfg, keys.NewCredential(testAPIKey))
		want := models.NewBaselineSession("anthropic", cfg.Baseline.Model)
		a := app.New(cfg, nil, svc, &mockRunner{session: want})
		router := testRouter(a)

		req := httptest.NewRequest(http.MethodPost, "/api/baseline/run",
			strings.NewReader(`{"probe_ids":["identity-01"]}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var session models.BaselineSession
		if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
			t.Fatalf("session response is not JSON: %v", err)
		}
		if session.ID != want.ID {
			t.Errorf("expected session %s, got %s", want.ID, session.ID)
		}
	})

	t.Run("missing credential returns 503", func(t *testing.T) {
		cfg := testConfig()
		svc := services.NewAnthropicService(cfg, keys.NewCredential(""))
		a := app.New(cfg, nil, svc, &mockRunner{})
		router := testRouter(a)

		req := httptest.NewRequest(http.MethodPost, "/api/baseline/run", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("unknown probe ids return 400", func(t *testing.T) {
		cfg := testConfig()
		svc := services.NewAnthropicService(cfg, keys.NewCredential(testAPIKey))
		runner := &mockRunner{err: fmt.Errorf("%w(s): nope", baseline.ErrUnknownProbe)}
		a := app.New(cfg, nil, svc, runner)
		router := testRouter(a)

		req := httptest.NewRequest(http.MethodPost, "/api/baseline/run",
			strings.NewReader(`{"probe_ids":["nope"]}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestHandler_GetSessions(t *testing.T) {
	t.Run("no database returns 503", func(t *testing.T) {
		router := testRouter(app.New(testConfig(), nil, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("returns sessions with limit", func(t *testing.T) {
		repo := &mockRepo{sessions: []models.BaselineSession{
			*models.NewBaselineSession("anthropic", "claude-3-5-sonnet-20241022"),
			*models.NewBaselineSession("anthropic", "claude-3-5-sonnet-20241022"),
		}}
		router := testRouter(app.New(testConfig(), repo, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions?limit=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}

		var sessions []models.BaselineSession
		if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
			t.Fatalf("sessions response is not JSON: %v", err)
		}
		if len(sessions) != 1 {
			t.Errorf("expected 1 session, got %d", len(sessions))
		}
	})

	t.Run("empty list is a JSON array", func(t *testing.T) {
		router := testRouter(app.New(testConfig(), &mockRepo{}, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("expected empty JSON array, got %s", w.Body.String())
		}
	})
}

func TestHandler_GetSession(t *testing.T) {
	t.Run("no database returns 503", func(t *testing.T) {
		router := testRouter(app.New(testConfig(), nil, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions/"+uuid.New().String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("invalid id returns 400", func(t *testing.T) {
		router := testRouter(app.New(testConfig(), &mockRepo{}, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions/not-a-uuid", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown id returns 404", func(t *testing.T) {
		repo := &mockRepo{byID: map[uuid.UUID]*models.BaselineSession{}}
		router := testRouter(app.New(testConfig(), repo, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions/"+uuid.New().String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("known id returns session", func(t *testing.T) {
		want := models.NewBaselineSession("anthropic", "claude-3-5-sonnet-20241022")
		repo := &mockRepo{byID: map[uuid.UUID]*models.BaselineSession{want.ID: want}}
		router := testRouter(app.New(testConfig(), repo, nil, nil))

		req := httptest.NewRequest(http.MethodGet, "/api/baseline/sessions/"+want.ID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}

		var session models.BaselineSession
		if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
			t.Fatalf("session response is not JSON: %v", err)
		}
		if session.ID != want.ID {
			t.Errorf("expected session %s, got %s", want.ID, session.ID)
		}
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := testRouter(app.New(testConfig(), nil, nil, nil))

	t.Run("sets headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/consciousness-forge", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected Access-Control-Allow-Origin *, got %q", got)
		}
	})

	t.Run("handles preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/anthropic/messages", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200 for preflight, got %d", w.Code)
		}
	})
}
