package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	r := NoopRenderHooks{}
	r.OnRenderStart(ctx, "table")
	r.OnRenderComplete(ctx, "table", time.Second, nil)

	s := NoopStateHooks{}
	s.OnRestore(ctx, "fast", 2, nil)
	s.OnFlush(ctx, 2, time.Second, nil)

	l := NoopLifecycleHooks{}
	l.OnInstanceStart(ctx, "doc", "embed")
	l.OnInstanceDisposed(ctx, "doc", "embed", 3, time.Second)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "state")
	c.OnCacheMiss(ctx, "state")
	c.OnCacheSet(ctx, "state", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "127.0.0.1:6806", "/api/query/sql")
	h.OnResponse(ctx, "POST", "127.0.0.1:6806", "/api/query/sql", 200, time.Second)
	h.OnError(ctx, "POST", "127.0.0.1:6806", "/api/query/sql", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Render().(NoopRenderHooks); !ok {
		t.Error("Render() should return NoopRenderHooks by default")
	}
	if _, ok := State().(NoopStateHooks); !ok {
		t.Error("State() should return NoopStateHooks by default")
	}
	if _, ok := Lifecycle().(NoopLifecycleHooks); !ok {
		t.Error("Lifecycle() should return NoopLifecycleHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customRender := &testRenderHooks{}
	SetRenderHooks(customRender)
	if Render() != customRender {
		t.Error("SetRenderHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	Reset()
	if _, ok := Render().(NoopRenderHooks); !ok {
		t.Error("Reset() should restore NoopRenderHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testRenderHooks{}
	SetRenderHooks(custom)
	SetRenderHooks(nil)

	if Render() != custom {
		t.Error("SetRenderHooks(nil) should be ignored")
	}
}

func TestPrometheusHooks(t *testing.T) {
	Reset()
	defer Reset()

	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	p.Install()

	ctx := context.Background()
	Render().OnRenderComplete(ctx, "table", time.Millisecond, nil)
	Render().OnRenderComplete(ctx, "table", time.Millisecond, errors.New("boom"))
	Lifecycle().OnInstanceStart(ctx, "doc", "a")
	Lifecycle().OnInstanceStart(ctx, "doc", "b")
	Lifecycle().OnInstanceDisposed(ctx, "doc", "a", 4, time.Millisecond)
	Cache().OnCacheSet(ctx, "state", 10)
	Cache().OnCacheHit(ctx, "state")

	if got := testutil.ToFloat64(p.renders.WithLabelValues("table", "ok")); got != 1 {
		t.Errorf("ok renders = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.renders.WithLabelValues("table", "error")); got != 1 {
		t.Errorf("error renders = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.instances); got != 1 {
		t.Errorf("live instances = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.disposers); got != 4 {
		t.Errorf("disposers = %v, want 4", got)
	}
	if got := testutil.ToFloat64(p.cacheBytes.WithLabelValues("state")); got != 10 {
		t.Errorf("cache bytes = %v, want 10", got)
	}

	// A second registration against the same registry must fail.
	if _, err := NewPrometheus(reg); err == nil {
		t.Error("expected duplicate registration error")
	}
}

type testRenderHooks struct{ NoopRenderHooks }
type testCacheHooks struct{ NoopCacheHooks }
