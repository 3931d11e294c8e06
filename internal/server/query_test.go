package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onslaught7/market-pulse-engine/internal/analyst"
	"github.com/onslaught7/market-pulse-engine/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes shared by the server tests
// ---------------------------------------------------------------------------

// errBoom is a sentinel dependency failure used across the server tests.
var errBoom = errors.New("boom")

// fakeAsker implements the asker interface. Questions containing "fail"
// return the configured error; everything else gets the canned answer,
// streamed as the configured tokens.
type fakeAsker struct {
	answer string
	tokens []string
	err    error
}

func (f *fakeAsker) Ask(_ context.Context, question string) (*analyst.Answer, error) {
	if f.err != nil && strings.Contains(question, "fail") {
		return nil, f.err
	}
	if strings.TrimSpace(question) == "" {
		return nil, analyst.ErrEmptyQuestion
	}
	return &analyst.Answer{Question: question, Answer: f.answer, SourcesScanned: 6}, nil
}

func (f *fakeAsker) AskStream(ctx context.Context, question string, onToken func(string) error) (*analyst.Answer, error) {
	if f.err != nil && strings.Contains(question, "fail") {
		return nil, f.err
	}
	if strings.TrimSpace(question) == "" {
		return nil, analyst.ErrEmptyQuestion
	}
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return nil, err
		}
	}
	return &analyst.Answer{Question: question, Answer: strings.Join(f.tokens, ""), SourcesScanned: 6}, nil
}

// fakeTaskQueue records pushed payloads.
type fakeTaskQueue struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (q *fakeTaskQueue) Push(_ context.Context, message []byte) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, string(message))
	return nil
}

func (q *fakeTaskQueue) Pop(ctx context.Context) ([]byte, error) { return nil, ctx.Err() }
func (q *fakeTaskQueue) Ping(context.Context) error              { return nil }
func (q *fakeTaskQueue) Close() error                            { return nil }

func (q *fakeTaskQueue) all() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pushed...)
}

// fakeHistory is an in-memory store.QueryStore.
type fakeHistory struct {
	mu   sync.Mutex
	recs []store.QueryRecord
}

func (h *fakeHistory) Append(_ context.Context, rec store.QueryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec.ID = int64(len(h.recs) + 1)
	h.recs = append(h.recs, rec)
	return nil
}

func (h *fakeHistory) Recent(_ context.Context, n int) ([]store.QueryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]store.QueryRecord(nil), h.recs...)
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (h *fakeHistory) Stats(context.Context) (store.Stats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return store.Stats{TotalQueries: int64(len(h.recs))}, nil
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recs)
}

// newTestServer builds a fully-routed Server with hermetic metrics.
func newTestServer(t *testing.T, engine asker, cfg *Config) (*Server, *fakeTaskQueue, *fakeHistory) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.MetricsRegistry = prometheus.NewRegistry()

	q := &fakeTaskQueue{}
	h := &fakeHistory{}
	s, err := New(engine, q, h, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, q, h
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	s, _, h := newTestServer(t, &fakeAsker{answer: "Rates held steady."}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/query", `{"question":"What did the Fed do?","user_id":"u1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ans analyst.Answer
	if err := json.Unmarshal(w.Body.Bytes(), &ans); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if ans.Answer != "Rates held steady." {
		t.Errorf("Answer = %q", ans.Answer)
	}
	if ans.SourcesScanned != 6 {
		t.Errorf("SourcesScanned = %d, want 6", ans.SourcesScanned)
	}
	if h.count() != 1 {
		t.Errorf("expected 1 history record, got %d", h.count())
	}
}

func TestHandleQuery_EmptyQuestion(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/query", `{"question":"   "}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Question cannot be empty.") {
		t.Errorf("missing detail in body: %s", w.Body.String())
	}
}

func TestHandleQuery_InvalidJSON(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/query", `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery_StageErrors verifies that each failing pipeline stage maps
// to 502 with its own detail string so clients can tell which dependency
// broke.
func TestHandleQuery_StageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		stage      analyst.Stage
		wantDetail string
	}{
		{analyst.StageEmbed, "Failed to generate embedding for your question."},
		{analyst.StageWisdomSearch, "Failed to search historical knowledge base."},
		{analyst.StageWireSearch, "Failed to search live news feed."},
		{analyst.StageSynthesis, "Failed to synthesize answer from AI model."},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			t.Parallel()

			engine := &fakeAsker{err: &analyst.StageError{Stage: tt.stage, Err: context.DeadlineExceeded}}
			s, _, h := newTestServer(t, engine, nil)

			w := doJSON(t, s, http.MethodPost, "/api/query", `{"question":"fail please"}`)

			if w.Code != http.StatusBadGateway {
				t.Fatalf("expected 502, got %d", w.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad error body: %v", err)
			}
			if resp.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", resp.Detail, tt.wantDetail)
			}
			if h.count() != 0 {
				t.Errorf("failed query must not be recorded, got %d records", h.count())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// POST /api/ingest
// ---------------------------------------------------------------------------

func TestHandleIngest_Accepted(t *testing.T) {
	t.Parallel()

	s, q, _ := newTestServer(t, &fakeAsker{}, nil)

	w := doJSON(t, s, http.MethodPost, "/api/ingest",
		`{"user_id":"u1","document_id":"doc-1","content":"Fed holds rates","metadata":{"source":"wsj"}}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	pushed := q.all()
	if len(pushed) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(pushed))
	}
	if !strings.Contains(pushed[0], `"document_id":"doc-1"`) {
		t.Errorf("queued payload missing document_id: %s", pushed[0])
	}
	if !strings.Contains(w.Body.String(), `"queued"`) {
		t.Errorf("response missing queued status: %s", w.Body.String())
	}
}

func TestHandleIngest_MissingFields(t *testing.T) {
	t.Parallel()

	s, q, _ := newTestServer(t, &fakeAsker{}, nil)

	for _, body := range []string{
		`{"document_id":"d","content":"c"}`,
		`{"user_id":"u","content":"c"}`,
		`{"user_id":"u","document_id":"d"}`,
		`{"user_id":"u","document_id":"d","content":"   "}`,
	} {
		w := doJSON(t, s, http.MethodPost, "/api/ingest", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
	if len(q.all()) != 0 {
		t.Errorf("invalid tasks must not be queued, got %d", len(q.all()))
	}
}

// ---------------------------------------------------------------------------
// GET /api/history and /api/analytics
// ---------------------------------------------------------------------------

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	s, _, h := newTestServer(t, &fakeAsker{}, nil)
	for range 3 {
		_ = h.Append(t.Context(), store.QueryRecord{Question: "q", Answer: "a", SourcesScanned: 6})
	}

	w := doJSON(t, s, http.MethodGet, "/api/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []store.QueryRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records, got %d", len(recs))
	}
}

func TestHandleHistory_BadLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	for _, limit := range []string{"zero", "0", "-5"} {
		w := doJSON(t, s, http.MethodGet, "/api/history?limit="+limit, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestHandleAnalytics(t *testing.T) {
	t.Parallel()

	s, _, h := newTestServer(t, &fakeAsker{answer: "a"}, nil)
	_ = h.Append(t.Context(), store.QueryRecord{Question: "q", Answer: "a"})

	w := doJSON(t, s, http.MethodGet, "/api/analytics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st store.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if st.TotalQueries != 1 {
		t.Errorf("TotalQueries = %d, want 1", st.TotalQueries)
	}
}

// ---------------------------------------------------------------------------
// Auth and CORS
// ---------------------------------------------------------------------------

func TestHandleQuery_Auth(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, &fakeAsker{answer: "a"}, &Config{APIKey: "secret"})

	w := doJSON(t, s, http.MethodPost, "/api/query", `{"question":"q"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}

	// Liveness stays unauthenticated.
	w = doJSON(t, s, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected /api/health to bypass auth, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

// TestHandleQuery_RecordsDuration sanity-checks that recorded history rows
// carry a non-negative latency.
func TestHandleQuery_RecordsDuration(t *testing.T) {
	t.Parallel()

	s, _, h := newTestServer(t, &fakeAsker{answer: "a"}, nil)

	_ = doJSON(t, s, http.MethodPost, "/api/query", `{"question":"q"}`)

	deadline := time.Now().Add(time.Second)
	for h.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	recs, _ := h.Recent(t.Context(), 1)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].DurationMS < 0 {
		t.Errorf("DurationMS = %d", recs[0].DurationMS)
	}
}
