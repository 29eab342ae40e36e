package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/health"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/scheduler"
	"github.com/tutu-network/shapeq/internal/infra/sqlite"
)

// backendFunc adapts a function to domain.Backend.
type backendFunc func(ctx context.Context, kind domain.TaskKind) (string, error)

func (f backendFunc) Fetch(ctx context.Context, kind domain.TaskKind) (string, error) {
	return f(ctx, kind)
}

func echoBackend() domain.Backend {
	return backendFunc(func(ctx context.Context, kind domain.TaskKind) (string, error) {
		return string(kind), nil
	})
}

type testEnv struct {
	srv        *Server
	http       *httptest.Server
	clock      *clockwork.FakeClock
	concurrent *scheduler.Concurrent
	sequential *scheduler.Sequential
	journal    *sqlite.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cat := catalog.Default()
	fc := clockwork.NewFakeClock()

	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("Open journal: %v", err)
	}

	conc := scheduler.NewConcurrent(cat, scheduler.WithClock(fc), scheduler.WithLogger(logger))
	seq := scheduler.NewSequential(cat, echoBackend(), scheduler.WithClock(fc), scheduler.WithLogger(logger))
	recs := []*sqlite.Recorder{
		sqlite.NewRecorder(db, conc, logger),
		sqlite.NewRecorder(db, seq, logger),
	}

	srv := NewServer(cat, logger, conc, seq)
	srv.SetJournal(db)
	srv.EnableMetrics()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		_ = conc.Close()
		_ = seq.Close()
		for _, r := range recs {
			r.Stop()
		}
		_ = db.Close()
	})
	return &testEnv{srv: srv, http: ts, clock: fc, concurrent: conc, sequential: seq, journal: db}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, r io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// ─── Health & Catalog ───────────────────────────────────────────────────────

func TestHealth_NoChecker(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth_ReportsChecks(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetHealth(health.NewChecker(nil, health.JournalCheck(env.journal)))

	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Status string          `json:"status"`
		Checks []health.Status `json:"checks"`
	}
	decode(t, rec.Body, &out)
	if out.Status != "ok" || len(out.Checks) != 1 || out.Checks[0].Name != "journal" {
		t.Errorf("health = %+v", out)
	}
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/api/catalog")
	var out struct {
		Kinds []catalog.Entry `json:"kinds"`
	}
	decode(t, resp.Body, &out)
	if len(out.Kinds) != 4 {
		t.Fatalf("kinds = %d, want 4", len(out.Kinds))
	}
	if out.Kinds[0].Kind != domain.KindRectangle {
		t.Errorf("first kind = %q, want rectangle", out.Kinds[0].Kind)
	}
}

// ─── Submit & State ─────────────────────────────────────────────────────────

func TestSubmit_Concurrent(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/concurrent/tasks", `{"kind":"Circle"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var task domain.TaskInstance
	decode(t, resp.Body, &task)
	if task.Kind != domain.KindCircle || task.ID == "" {
		t.Errorf("task = %+v", task)
	}

	var snap domain.Snapshot
	decode(t, env.get(t, "/api/concurrent/state").Body, &snap)
	if snap.Contains(task.ID) != "queue" {
		t.Errorf("%s location = %q, want queue", task.ID, snap.Contains(task.ID))
	}
}

func TestSubmit_Errors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown kind", "/api/concurrent/tasks", `{"kind":"hexagon"}`, http.StatusBadRequest},
		{"bad json", "/api/sequential/tasks", `{`, http.StatusBadRequest},
		{"unknown mode", "/api/parallel/tasks", `{"kind":"line"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var out struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			decode(t, resp.Body, &out)
			if out.Error.Message == "" || out.Error.Type == "" {
				t.Errorf("error envelope = %+v", out)
			}
		})
	}
}

func TestSubmit_ClosedScheduler(t *testing.T) {
	env := newTestEnv(t)
	_ = env.concurrent.Close()
	resp := env.post(t, "/api/concurrent/tasks", `{"kind":"line"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/concurrent/tasks", `{"kind":"line"}`)

	var st scheduler.Stats
	decode(t, env.get(t, "/api/concurrent/stats").Body, &st)
	if st.Scheduler != "concurrent" || st.TotalSubmitted != 1 {
		t.Errorf("stats = %+v", st)
	}
}

// ─── History ────────────────────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	events, unsub := env.sequential.Subscribe(16)
	defer unsub()

	env.post(t, "/api/sequential/tasks", `{"kind":"line"}`)
	waitForEvent(t, events, domain.EventCompleted)

	// The recorder writes asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	var out struct {
		Scheduler string             `json:"scheduler"`
		Events    []sqlite.TaskEvent `json:"events"`
	}
	for {
		resp := env.get(t, "/api/sequential/history?limit=10")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		decode(t, resp.Body, &out)
		if len(out.Events) >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(out.Events) != 3 {
		t.Fatalf("history = %d rows, want 3", len(out.Events))
	}
	if out.Events[0].Event != "completed" || out.Events[2].Event != "queued" {
		t.Errorf("history order = %s..%s, want completed..queued", out.Events[0].Event, out.Events[2].Event)
	}
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetJournal(nil)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/concurrent/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHistory_BadLimit(t *testing.T) {
	env := newTestEnv(t)
	if resp := env.get(t, "/api/concurrent/history?limit=-1"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// ─── Events (SSE) ───────────────────────────────────────────────────────────

type sseMessage struct {
	event string
	data  string
}

func readSSE(t *testing.T, r *bufio.Reader) sseMessage {
	t.Helper()
	var msg sseMessage
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return msg
		case strings.HasPrefix(line, "event: "):
			msg.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			msg.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitForEvent(t *testing.T, ch <-chan domain.Event, typ domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestEvents_Stream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/api/concurrent/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	r := bufio.NewReader(resp.Body)

	first := readSSE(t, r)
	if first.event != "init" {
		t.Fatalf("first event = %q, want init", first.event)
	}

	env.post(t, "/api/concurrent/tasks", `{"kind":"circle"}`)
	queued := readSSE(t, r)
	if queued.event != "queued" {
		t.Fatalf("event = %q, want queued", queued.event)
	}

	env.clock.Advance(time.Second)
	done := readSSE(t, r)
	if done.event != "completed" {
		t.Fatalf("event = %q, want completed", done.event)
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(done.data), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Task.Kind != domain.KindCircle || len(ev.State.Completed) != 1 {
		t.Errorf("completed event = %+v", ev)
	}
}

func TestEvents_ClosedScheduler(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/api/sequential/events")
	r := bufio.NewReader(resp.Body)
	if msg := readSSE(t, r); msg.event != "init" {
		t.Fatalf("first event = %q, want init", msg.event)
	}
	_ = env.sequential.Close()
	if msg := readSSE(t, r); msg.event != "closed" {
		t.Errorf("event = %q, want closed", msg.event)
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetCORSOrigins([]string{"http://localhost:5173"})
	h := env.srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/concurrent/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for untrusted origin = %q, want empty", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/concurrent/tasks", `{"kind":"line"}`)
	resp := env.get(t, "/metrics")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "shapeq_tasks_submitted_total") {
		t.Error("/metrics missing shapeq_tasks_submitted_total")
	}
}
