package state

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/frostime/sy-query-view/pkg/attrs"
	"github.com/frostime/sy-query-view/pkg/cache"
)

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newTestStore(t *testing.T, id string, host map[string]string, c cache.Cache, d attrs.Store) *Store {
	t.Helper()
	return New(context.Background(), id, host, Options{Cache: c, Durable: d, Logger: quietLogger()})
}

func TestUseStateInitialAndSet(t *testing.T) {
	s := newTestStore(t, "e1", nil, cache.NewMemoryCache(), nil)
	h := UseState(s, "k", 0)
	if h.Get() != 0 {
		t.Fatalf("Get() = %d, want initial 0", h.Get())
	}
	h.Set(5)
	if h.Get() != 5 {
		t.Errorf("Get() after Set = %d, want 5", h.Get())
	}
	if UseState(s, "k", 99) != h {
		t.Error("UseState should return the existing handle for a key")
	}
	if s.Source() != TierInitial {
		t.Errorf("Source() = %q, want %q", s.Source(), TierInitial)
	}
}

func TestWriteMirrorsFastTierSynchronously(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	s := newTestStore(t, "e1", nil, c, nil)
	UseState(s, "name", "x").Set("y")

	data, ok, err := c.Get(ctx, "state:e1")
	if err != nil || !ok {
		t.Fatalf("fast tier entry missing: ok=%v err=%v", ok, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["name"] != "y" {
		t.Errorf("mirrored state = %v", m)
	}
}

func TestRoundTripThroughFastTier(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	d := attrs.NewMemoryStore()

	s := newTestStore(t, "e1", nil, c, d)
	UseState(s, "k", 0).Set(5)
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fresh := newTestStore(t, "e1", nil, c, d)
	if got := UseState(fresh, "k", 0).Get(); got != 5 {
		t.Errorf("restored value = %d, want 5", got)
	}
	if fresh.Source() != TierFast {
		t.Errorf("Source() = %q, want %q", fresh.Source(), TierFast)
	}
}

func TestRoundTripThroughDurableTier(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	d := attrs.NewMemoryStore()

	s := newTestStore(t, "e1", nil, c, d)
	UseState(s, "k", 0).Set(5)
	UseState(s, "tags", []string{}).Set([]string{"a", "b"})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := PurgeFastTier(ctx, c, nil); err != nil {
		t.Fatalf("PurgeFastTier: %v", err)
	}

	host, _ := d.Read(ctx, "e1")
	fresh := newTestStore(t, "e1", host, c, d)
	if got := UseState(fresh, "k", 0).Get(); got != 5 {
		t.Errorf("restored k = %d, want 5", got)
	}
	if diff := cmp.Diff([]string{"a", "b"}, UseState(fresh, "tags", []string(nil)).Get()); diff != "" {
		t.Errorf("restored tags (-want +got):\n%s", diff)
	}
	if fresh.Source() != TierDurable {
		t.Errorf("Source() = %q, want %q", fresh.Source(), TierDurable)
	}
}

func TestFlushIsSingleBatchedWrite(t *testing.T) {
	ctx := context.Background()
	d := attrs.NewMemoryStore()
	s := newTestStore(t, "e1", nil, cache.NewMemoryCache(), d)

	h := UseState(s, "n", 0)
	for i := range 100 {
		h.Set(i)
	}
	UseState(s, "m", "x")

	if d.Writes() != 0 {
		t.Fatalf("durable tier written %d times before disposal", d.Writes())
	}
	_ = s.Flush(ctx)
	_ = s.Flush(ctx)
	if d.Writes() != 1 {
		t.Errorf("durable writes = %d, want exactly 1", d.Writes())
	}

	got, _ := d.Read(ctx, "e1")
	want := map[string]string{AttrPrefix + "n": "99", AttrPrefix + "m": `"x"`}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("durable attrs (-want +got):\n%s", diff)
	}
}

func TestWritesAfterFlushAreIgnored(t *testing.T) {
	s := newTestStore(t, "e1", nil, nil, nil)
	h := UseState(s, "k", 1)
	_ = s.Flush(context.Background())
	h.Set(2)
	if h.Get() != 1 {
		t.Errorf("Get() = %d, want 1 after write to closed store", h.Get())
	}
	if !s.Closed() {
		t.Error("Closed() = false after Flush")
	}
}

func TestMalformedDurableFieldFallsBackToInitial(t *testing.T) {
	host := map[string]string{
		AttrPrefix + "good":  "3",
		AttrPrefix + "bad":   "{not json",
		AttrPrefix + "typed": `"text"`,
		"custom-unrelated":   "1",
	}
	s := newTestStore(t, "e1", host, nil, nil)

	if got := UseState(s, "good", 0).Get(); got != 3 {
		t.Errorf("good = %d, want 3", got)
	}
	if got := UseState(s, "bad", 7).Get(); got != 7 {
		t.Errorf("bad = %d, want initial 7", got)
	}
	// Valid JSON of the wrong type also reverts to the initial value.
	if got := UseState(s, "typed", 8).Get(); got != 8 {
		t.Errorf("typed = %d, want initial 8", got)
	}
}

func TestDecodeAttrs(t *testing.T) {
	fields, errs := DecodeAttrs(map[string]string{
		AttrPrefix + "a": `[1,2]`,
		AttrPrefix + "b": `oops`,
		AttrPrefix:       `1`,
		"name":           `"x"`,
	})
	if len(fields) != 1 || string(fields["a"]) != "[1,2]" {
		t.Errorf("fields = %v", fields)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one error", errs)
	}
}

func TestEffectsAndDerived(t *testing.T) {
	s := newTestStore(t, "e1", nil, nil, nil)
	h := UseState(s, "n", 1)

	var seen [][2]int
	h.Effect(func(newValue, current int) { seen = append(seen, [2]int{newValue, current}) })
	h.Effect(func(newValue, current int) { seen = append(seen, [2]int{newValue * 10, current}) })

	double := Derived(h, func(v int) int { return v * 2 })
	if double() != 2 {
		t.Errorf("derived = %d, want 2", double())
	}

	h.Set(3)
	want := [][2]int{{3, 3}, {30, 3}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("effect calls (-want +got):\n%s", diff)
	}
	// Derived values are recomputed on each call.
	if double() != 6 {
		t.Errorf("derived = %d, want 6", double())
	}

	h.Update(func(v int) int { return v + 1 })
	if h.Get() != 4 {
		t.Errorf("Update result = %d, want 4", h.Get())
	}
}

func TestKeysAndSnapshot(t *testing.T) {
	s := newTestStore(t, "e1", nil, nil, nil)
	UseState(s, "b", 2)
	UseState(s, "a", "x")
	if diff := cmp.Diff([]string{"b", "a"}, s.Keys()); diff != "" {
		t.Errorf("Keys (-want +got):\n%s", diff)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if string(snap["b"]) != "2" || string(snap["a"]) != `"x"` {
		t.Errorf("Snapshot = %v", snap)
	}
}

func TestDurableHelpers(t *testing.T) {
	ctx := context.Background()
	d := attrs.NewMemoryStore()
	_ = d.Write(ctx, "e1", map[string]string{AttrPrefix + "k": "1", "name": "keep"})

	fields, errs, err := ReadDurable(ctx, d, "e1")
	if err != nil || len(errs) != 0 || string(fields["k"]) != "1" {
		t.Fatalf("ReadDurable = %v, %v, %v", fields, errs, err)
	}

	n, err := ClearDurable(ctx, d, "e1")
	if err != nil || n != 1 {
		t.Fatalf("ClearDurable = %d, %v", n, err)
	}
	left, _ := d.Read(ctx, "e1")
	if diff := cmp.Diff(map[string]string{"name": "keep"}, left); diff != "" {
		t.Errorf("remaining attrs (-want +got):\n%s", diff)
	}
}

func TestUntouchedRestoredKeysSurvive(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	d := attrs.NewMemoryStore()

	first := newTestStore(t, "e1", nil, c, d)
	UseState(first, "a", 0).Set(1)
	UseState(first, "b", 0).Set(2)
	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// The second run only touches a; b must stay in both tiers.
	second := newTestStore(t, "e1", nil, c, d)
	UseState(second, "a", 0).Set(10)
	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	third := newTestStore(t, "e1", nil, c, d)
	if third.Source() != TierFast {
		t.Fatalf("Source() = %q, want %q", third.Source(), TierFast)
	}
	if a, b := UseState(third, "a", 0).Get(), UseState(third, "b", 0).Get(); a != 10 || b != 2 {
		t.Errorf("fast tier restored a=%d b=%d, want a=10 b=2", a, b)
	}

	got, _ := d.Read(ctx, "e1")
	want := map[string]string{AttrPrefix + "a": "10", AttrPrefix + "b": "2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("durable attrs (-want +got):\n%s", diff)
	}
}

type recordingElement map[string]string

func (e recordingElement) SetAttr(name, value string) { e[name] = value }

func TestFlushCopiesBatchOntoElement(t *testing.T) {
	el := recordingElement{}
	s := New(context.Background(), "e1", nil, Options{Element: el, Logger: quietLogger()})
	UseState(s, "k", "x").Set("y")
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if diff := cmp.Diff(map[string]string{AttrPrefix + "k": `"y"`}, map[string]string(el)); diff != "" {
		t.Errorf("element attrs (-want +got):\n%s", diff)
	}
}
