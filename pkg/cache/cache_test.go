package cache

import (
	"context"
	"testing"
	"time"

	"github.com/frostime/sy-query-view/pkg/observability"
)

func backends(t *testing.T) map[string]Cache {
	t.Helper()
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	return map[string]Cache{
		"memory": NewMemoryCache(),
		"file":   fc,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer c.Close()

			if _, hit, err := c.Get(ctx, "state:a"); err != nil || hit {
				t.Fatalf("Get on empty cache = hit %v, err %v", hit, err)
			}
			if err := c.Set(ctx, "state:a", []byte(`{"n":1}`), 0); err != nil {
				t.Fatalf("Set: %v", err)
			}
			data, hit, err := c.Get(ctx, "state:a")
			if err != nil || !hit || string(data) != `{"n":1}` {
				t.Errorf("Get = %q, %v, %v", data, hit, err)
			}
			if err := c.Delete(ctx, "state:a"); err != nil {
				t.Errorf("Delete: %v", err)
			}
			if _, hit, _ := c.Get(ctx, "state:a"); hit {
				t.Error("entry survived Delete")
			}
			if err := c.Delete(ctx, "state:missing"); err != nil {
				t.Errorf("Delete missing: %v", err)
			}
		})
	}
}

func TestCacheClearPrefix(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer c.Close()
			for _, k := range []string{"state:a", "state:b", "other:c"} {
				if err := c.Set(ctx, k, []byte(k), 0); err != nil {
					t.Fatalf("Set(%q): %v", k, err)
				}
			}

			if err := c.Clear(ctx, StatePrefix); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			for _, k := range []string{"state:a", "state:b"} {
				if _, hit, _ := c.Get(ctx, k); hit {
					t.Errorf("%q survived Clear", k)
				}
			}
			if _, hit, _ := c.Get(ctx, "other:c"); !hit {
				t.Error("Clear removed a key outside the prefix")
			}

			if err := c.Clear(ctx, ""); err != nil {
				t.Fatalf("Clear all: %v", err)
			}
			if _, hit, _ := c.Get(ctx, "other:c"); hit {
				t.Error("Clear(\"\") should remove everything")
			}
		})
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
}

func TestMemoryCacheCopiesData(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored data aliased caller buffer: %q", got)
	}
}

func TestMemoryCacheClosed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_ = c.Close()
	if err := c.Set(ctx, "k", nil, 0); err != ErrClosed {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
	if _, _, err := c.Get(ctx, "k"); err != ErrClosed {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
}

func TestFileCacheExpiredEntry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache.Get should always return a nil miss")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ = c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if err := c.Clear(ctx, ""); err != nil {
		t.Errorf("Clear error: %v", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestKeyers(t *testing.T) {
	tests := []struct {
		name       string
		keyer      Keyer
		wantKey    string
		wantPrefix string
	}{
		{"default", NewDefaultKeyer(), "state:e1", "state:"},
		{"scoped", NewScopedKeyer(NewDefaultKeyer(), "ws:1:"), "ws:1:state:e1", "ws:1:state:"},
		{"scoped nil inner", NewScopedKeyer(nil, "p:"), "p:state:e1", "p:state:"},
	}
	for _, tt := range tests {
		if got := tt.keyer.StateKey("e1"); got != tt.wantKey {
			t.Errorf("%s: StateKey = %q, want %q", tt.name, got, tt.wantKey)
		}
		if got := tt.keyer.StatePrefix(); got != tt.wantPrefix {
			t.Errorf("%s: StatePrefix = %q, want %q", tt.name, got, tt.wantPrefix)
		}
	}
}

func TestKeyType(t *testing.T) {
	tests := []struct{ key, want string }{
		{"state:abc", "state"},
		{"ws:1:state:abc", "ws:1:state"},
		{"plain", "other"},
		{":lead", "other"},
	}
	for _, tt := range tests {
		if got := keyType(tt.key); got != tt.want {
			t.Errorf("keyType(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

type countingHooks struct {
	observability.NoopCacheHooks
	hits, misses, sets int
}

func (h *countingHooks) OnCacheHit(context.Context, string)      { h.hits++ }
func (h *countingHooks) OnCacheMiss(context.Context, string)     { h.misses++ }
func (h *countingHooks) OnCacheSet(context.Context, string, int) { h.sets++ }

func TestInstrumented(t *testing.T) {
	hooks := &countingHooks{}
	observability.SetCacheHooks(hooks)
	defer observability.Reset()

	ctx := context.Background()
	c := Instrument(NewMemoryCache())
	if Instrument(c) != c {
		t.Error("Instrument should not double-wrap")
	}

	_, _, _ = c.Get(ctx, "state:a")
	_ = c.Set(ctx, "state:a", []byte("x"), 0)
	_, _, _ = c.Get(ctx, "state:a")

	if hooks.hits != 1 || hooks.misses != 1 || hooks.sets != 1 {
		t.Errorf("hits=%d misses=%d sets=%d, want 1 each", hooks.hits, hooks.misses, hooks.sets)
	}
}
