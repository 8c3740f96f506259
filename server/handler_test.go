package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	advisorx "github.com/hardlaunch/hardlaunch/agent/advisor"
	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	runnerx "github.com/hardlaunch/hardlaunch/agent/runner"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

type stubStream struct {
	text string
	done bool
}

func (s *stubStream) Next() (contractx.Event, error) {
	if s.done {
		return contractx.Event{}, io.EOF
	}
	s.done = true
	return contractx.Event{Terminal: true, Text: s.text}, nil
}

func (s *stubStream) Close() error { return nil }

type stubClient struct{ reply string }

func (c *stubClient) Run(_ context.Context, _ contractx.CompletionRequest) (contractx.EventStream, error) {
	return &stubStream{text: c.reply}, nil
}

type handlerHarness struct {
	router    chi.Router
	registry  *sessionx.Registry
	summaries *summaryx.Store
	advisor   *advisorx.Advisor
}

func newHandlerHarness(t *testing.T, reply string) *handlerHarness {
	t.Helper()

	registry, err := sessionx.NewRegistry(sessionx.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	summaries, err := summaryx.NewStore(registry)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	runner, err := runnerx.New(&stubClient{reply: reply}, summaries, nil, 0)
	if err != nil {
		t.Fatalf("runner.New() error = %v", err)
	}
	adv, err := advisorx.New(registry, summaries, rolex.NewCatalog(), runner)
	if err != nil {
		t.Fatalf("advisor.New() error = %v", err)
	}

	router := chi.NewRouter()
	NewHandler(adv, true).RegisterRoutes(router)
	return &handlerHarness{router: router, registry: registry, summaries: summaries, advisor: adv}
}

func (h *handlerHarness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestChatEndpoint(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "Welcome aboard.")

	rec := h.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[chatResponse](t, rec)
	if resp.SessionID == "" {
		t.Fatal("expected a session id in the response")
	}
	if resp.Reply != "Welcome aboard." {
		t.Fatalf("reply = %q", resp.Reply)
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "never")

	rec := h.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatEndpointRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "never")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitEndpointFlows(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "noted")
	ctx := context.Background()

	// Failures are tagged in the payload, never transported as HTTP errors.
	rec := h.do(t, http.MethodPost, "/api/summary/submit", map[string]string{"session_id": "missing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[submitResponse](t, rec)
	if resp.Success || resp.Message != "Session not found" {
		t.Fatalf("response = %+v", resp)
	}

	rec = h.do(t, http.MethodPost, "/api/summary/submit", map[string]string{})
	resp = decode[submitResponse](t, rec)
	if resp.Success || resp.Message != "No session ID provided" {
		t.Fatalf("response = %+v", resp)
	}

	sess, err := h.registry.GetOrCreate(ctx, "", "founder-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := h.summaries.Save(ctx, sess, "a summary", summaryx.SourceSurvey); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec = h.do(t, http.MethodPost, "/api/summary/submit", map[string]string{"session_id": sess.ID})
	resp = decode[submitResponse](t, rec)
	if !resp.Success || resp.Message != "Business summary submitted successfully" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "noted")
	ctx := context.Background()

	rec := h.do(t, http.MethodGet, "/api/summary/status", nil)
	resp := decode[statusResponse](t, rec)
	if resp.Message != "No session ID provided" {
		t.Fatalf("response = %+v", resp)
	}

	sess, err := h.registry.GetOrCreate(ctx, "", "founder-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := h.summaries.Save(ctx, sess, "a summary", summaryx.SourceSurvey); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := h.summaries.Submit(ctx, sess); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec = h.do(t, http.MethodGet, "/api/summary/status?session_id="+sess.ID, nil)
	resp = decode[statusResponse](t, rec)
	if !resp.Submitted || !resp.HasSummary {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "noted")

	rec := h.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[map[string]any](t, rec)
	if resp["status"] != "healthy" {
		t.Fatalf("response = %+v", resp)
	}
	if resp["llm_configured"] != true {
		t.Fatalf("llm_configured = %v", resp["llm_configured"])
	}
}

func TestHealthEndpointReportsUnconfiguredLLM(t *testing.T) {
	t.Parallel()

	h := newHandlerHarness(t, "noted")
	router := chi.NewRouter()
	NewHandler(h.advisor, false).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	resp := decode[map[string]any](t, rec)
	if resp["llm_configured"] != false {
		t.Fatalf("llm_configured = %v, want false", resp["llm_configured"])
	}
}
