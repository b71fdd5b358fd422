package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frostime/sy-query-view/pkg/attrs"
	"github.com/frostime/sy-query-view/pkg/cache"
	"github.com/frostime/sy-query-view/pkg/events"
	"github.com/frostime/sy-query-view/pkg/observability"
	"github.com/frostime/sy-query-view/pkg/queryview"
	"github.com/frostime/sy-query-view/pkg/record"
)

type fakeSource struct{}

func (fakeSource) Query(context.Context, string, ...any) ([]record.Record, error) {
	return []record.Record{
		record.New(map[string]any{"id": "a", "content": "Alpha"}),
		record.New(map[string]any{"id": "b", "content": "Beta"}),
	}, nil
}

func (fakeSource) Close() error { return nil }

type fixture struct {
	server  *Server
	handler http.Handler
	manager *queryview.Manager
}

func newFixture(t *testing.T, metrics http.Handler) *fixture {
	t.Helper()
	logger := log.New(io.Discard)
	m := queryview.NewManager(queryview.Options{
		Source:  fakeSource{},
		Cache:   cache.NewMemoryCache(),
		Durable: attrs.NewMemoryStore(),
		Logger:  logger,
	})
	bus := events.NewBus(logger)
	cancel := m.Subscribe(bus)
	t.Cleanup(cancel)
	s := New(Config{Manager: m, Bus: bus, Metrics: metrics, Logger: logger})
	return &fixture{server: s, handler: s.Handler(), manager: m}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const renderBody = `{
	"doc_id": "doc1",
	"embed_id": "e1",
	"pipeline": {"steps": [{"query": "SELECT *", "columns": ["id", "content"]}]}
}`

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do("GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	f.do("POST", "/api/v1/render", renderBody)
	rec := f.do("GET", "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Documents != 1 || got.Instances != 1 || got.Listeners != 1 {
		t.Errorf("status = %+v", got)
	}
	if rec := f.do("GET", "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rec.Code)
	}
}

func TestRenderLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do("POST", "/api/v1/render", renderBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("render status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if id := rec.Header().Get("X-Queryview-Instance"); id != "e1" {
		t.Errorf("instance header = %q", id)
	}
	if !strings.Contains(rec.Body.String(), "Alpha") {
		t.Errorf("render body missing rows:\n%s", rec.Body)
	}

	if rec := f.do("GET", "/api/v1/instances/doc1/e1", ""); rec.Code != http.StatusOK {
		t.Errorf("get instance status = %d", rec.Code)
	}
	if rec := f.do("DELETE", "/api/v1/instances/doc1/e1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := f.do("GET", "/api/v1/instances/doc1/e1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestRenderScriptErrorStillRenders(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"doc_id": "doc1", "embed_id": "e1", "pipeline": {"steps": [
		{"query": "SELECT *", "ops": [{"op": "addcol", "field": "n", "value": [1, 2, 3]}]}
	]}}`
	rec := f.do("POST", "/api/v1/render", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `data-error-code="SHAPE_MISMATCH"`) {
		t.Errorf("body has no inline error:\n%s", rec.Body)
	}
}

func TestRenderBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"no pipeline", `{"doc_id": "d", "embed_id": "e"}`, http.StatusBadRequest},
		{"no steps", `{"doc_id": "d", "embed_id": "e", "pipeline": {"steps": []}}`, http.StatusBadRequest},
		{"bad embed id", `{"doc_id": "d", "embed_id": "a/b", "pipeline": {"steps": [{"text": "x"}]}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do("POST", "/api/v1/render", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			var e errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("error body = %+v, %v", e, err)
			}
		})
	}
}

func TestPublishEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.do("POST", "/api/v1/render", renderBody)

	rec := f.do("POST", "/api/v1/events", `{"kind": "document.destroyed", "doc_id": "doc1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp publishResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Handlers != 1 || resp.Kind != events.DocumentDestroyed {
		t.Errorf("response = %+v", resp)
	}
	if f.manager.Get("doc1", "e1") != nil {
		t.Error("instance survived document.destroyed")
	}

	if rec := f.do("POST", "/api/v1/events", `{"kind": "doc.moved"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d", rec.Code)
	}
	if rec := f.do("POST", "/api/v1/events", `{"kind": "document.destroyed"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing doc id status = %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)
	f.do("POST", "/api/v1/render", renderBody)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(events.Event{Kind: events.DocumentDestroyed, DocID: "doc1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var reply StreamMessage
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if reply.Type != "ack" || reply.Handlers != 1 {
		t.Errorf("reply = %+v", reply)
	}
	if f.manager.Get("doc1", "e1") != nil {
		t.Error("instance survived streamed document.destroyed")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if reply.Type != "error" || reply.Error == "" {
		t.Errorf("reply to garbage = %+v", reply)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := observability.NewPrometheus(reg); err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	f := newFixture(t, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	rec := f.do("GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "queryview_lifecycle_instances") {
		t.Errorf("metrics output missing instance gauge:\n%s", rec.Body)
	}
}

func TestCheckOrigin(t *testing.T) {
	s := New(Config{AllowedOrigins: []string{"https://notes.example/"}, Logger: log.New(io.Discard)})
	open := New(Config{AllowedOrigins: []string{"*"}, Logger: log.New(io.Discard)})

	tests := []struct {
		name   string
		srv    *Server
		origin string
		want   bool
	}{
		{"no origin header", s, "", true},
		{"same host", s, "http://example.com", true},
		{"configured origin", s, "https://notes.example", true},
		{"foreign page", s, "https://evil.example", false},
		{"malformed origin", s, "://", false},
		{"wildcard", open, "https://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/events/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := tt.srv.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		conn.Close()
		t.Fatal("foreign origin opened the event stream")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake response = %v, want 403", resp)
	}
}
