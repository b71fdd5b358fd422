package collection

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
)

func sample() *Collection {
	return FromMaps([]map[string]any{
		{"id": "a", "type": "d"},
		{"id": "b", "type": "p"},
		{"id": "a", "type": "d"},
	})
}

func ids(c *Collection) []string {
	var out []string
	c.Each(func(r record.Record, _ int) { out = append(out, r.ID()) })
	return out
}

func TestWrapIdempotent(t *testing.T) {
	c := sample()
	if Wrap(c) != c {
		t.Error("Wrap(*Collection) should return the same collection")
	}
	if !Wrap(Wrap(c)).Equal(c) {
		t.Error("double wrap changed content")
	}
	if Wrap(nil).Len() != 0 {
		t.Error("Wrap(nil) should be empty")
	}
	var nilColl *Collection
	if Wrap(nilColl).Len() != 0 {
		t.Error("Wrap of a nil *Collection should be empty")
	}
	rows := []record.Record{record.New(map[string]any{"id": "x"})}
	if Wrap(rows).Len() != 1 {
		t.Error("Wrap([]record.Record) lost rows")
	}
}

func TestOperationsDoNotMutate(t *testing.T) {
	c := sample()
	before := c.Records()

	_ = c.Pick("id")
	_ = c.Omit("type")
	_ = c.SortOn("id", Desc)
	_ = c.Filter(func(r record.Record, _ int) bool { return false })
	_ = c.Slice(1, 2)
	_ = c.Unique()
	_, _ = c.AddCol(Columns{"x": 1})
	_ = c.AddRow(sample())
	_ = c.GroupBy("type", nil)

	if !New(before...).Equal(c) {
		t.Error("receiver was mutated by a transformation")
	}
}

func TestPick(t *testing.T) {
	c := sample()

	multi := c.Pick("id", "missing")
	if multi.IsScalar() {
		t.Fatal("two-field pick should not be scalar")
	}
	for _, r := range multi.Records() {
		if !slices.Equal(r.Fields(), []string{"id"}) {
			t.Errorf("picked fields = %v", r.Fields())
		}
	}

	single := c.Pick("type")
	if !single.IsScalar() {
		t.Fatal("single-field pick should be scalar")
	}
	if diff := cmp.Diff([]any{"d", "p", "d"}, single.Values()); diff != "" {
		t.Errorf("scalar values mismatch (-want +got):\n%s", diff)
	}
}

func TestPickKeepsEmptyColumns(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": "a", "name": "", "extra": ""}})

	if got := c.Pick("id", "name").Records()[0].Fields(); !slices.Equal(got, []string{"id", "name"}) {
		t.Errorf("Pick(id, name) fields = %v", got)
	}
	if diff := cmp.Diff([]any{""}, c.Pick("name").Values()); diff != "" {
		t.Errorf("Pick(name) values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{""}, c.Pick("extra").Values()); diff != "" {
		t.Errorf("Pick(extra) values (-want +got):\n%s", diff)
	}
}

func TestPickOmitDisjoint(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": "a", "n": 1}, {"id": "b", "n": 2}})
	out := c.Pick("id", "n").Omit("id", "n")
	for _, r := range out.Records() {
		if r.Len() != 0 {
			t.Errorf("expected empty record, got %v", r.Map())
		}
	}
}

func TestOmitThenAddColReconstructs(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": "a", "score": 1},
		{"id": "b", "score": 2},
	})
	scores := c.Pick("score").Values()

	rebuilt, err := c.Omit("score").AddCol(Columns{"score": scores})
	if err != nil {
		t.Fatalf("AddCol: %v", err)
	}
	if !rebuilt.Equal(c) {
		t.Errorf("rebuilt = %v, want %v", rebuilt.Values(), c.Values())
	}
}

func TestSortOnStable(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": "1", "rank": 2},
		{"id": "2", "rank": 1},
		{"id": "3", "rank": 2},
		{"id": "4", "rank": 1},
		{"id": "5"},
	})

	asc := c.SortOn("rank", Asc)
	if got := ids(asc); !slices.Equal(got, []string{"5", "2", "4", "1", "3"}) {
		t.Errorf("asc = %v", got)
	}
	desc := c.SortOn("rank", Desc)
	if got := ids(desc); !slices.Equal(got, []string{"1", "3", "2", "4", "5"}) {
		t.Errorf("desc = %v", got)
	}
	// Re-sorting a sorted collection keeps tie order.
	if got := ids(asc.SortOn("rank", "")); !slices.Equal(got, ids(asc)) {
		t.Errorf("repeated sort = %v", got)
	}
}

func TestGroupBy(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": "1", "type": "d"},
		{"id": "2", "type": "p"},
		{"id": "3", "type": "d"},
	})

	var calls []string
	g := c.GroupBy("type", func(key string, sub *Collection) {
		calls = append(calls, key)
		// Groups are fully populated before callbacks run.
		if key == "d" && sub.Len() != 2 {
			t.Errorf("group d has %d records in callback", sub.Len())
		}
	})

	if !slices.Equal(g.Keys(), []string{"d", "p"}) {
		t.Errorf("Keys() = %v", g.Keys())
	}
	if !slices.Equal(calls, []string{"d", "p"}) {
		t.Errorf("callback order = %v", calls)
	}
	d, _ := g.Get("d")
	p, _ := g.Get("p")
	if d.Len() != 2 || p.Len() != 1 {
		t.Errorf("group sizes d=%d p=%d", d.Len(), p.Len())
	}
	if got := ids(d); !slices.Equal(got, []string{"1", "3"}) {
		t.Errorf("group d order = %v", got)
	}
}

func TestGroupByCoercesKeys(t *testing.T) {
	c := FromMaps([]map[string]any{{"n": 1}, {"n": 1.0}, {"n": "1"}, {}})
	g := c.GroupBy("n", nil)
	if !slices.Equal(g.Keys(), []string{"1", ""}) {
		t.Errorf("Keys() = %v", g.Keys())
	}
}

func TestFilterAndSlice(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": "1"}, {"id": "2"}, {"id": "3"}, {"id": "4"}})

	even := c.Filter(func(_ record.Record, i int) bool { return i%2 == 1 })
	if got := ids(even); !slices.Equal(got, []string{"2", "4"}) {
		t.Errorf("Filter = %v", got)
	}

	tests := []struct {
		start, end int
		want       []string
	}{
		{0, 2, []string{"1", "2"}},
		{1, 10, []string{"2", "3", "4"}},
		{-2, 4, []string{"3", "4"}},
		{0, -1, []string{"1", "2", "3"}},
		{3, 1, nil},
	}
	for _, tt := range tests {
		if got := ids(c.Slice(tt.start, tt.end)); !slices.Equal(got, tt.want) {
			t.Errorf("Slice(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestUnique(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": "a", "type": "d", "n": 1},
		{"id": "b", "type": "p"},
		{"id": "a", "type": "d", "n": 2},
	})

	u := c.Unique()
	if got := ids(u); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Unique = %v", got)
	}
	first, _ := u.At(0)
	if v, _ := first.Get("n"); v != 1 {
		t.Errorf("Unique kept n=%v, want the first occurrence", v)
	}

	byID := sample().UniqueBy("id")
	if byID.Len() != 2 || !slices.Equal(ids(byID), []string{"a", "b"}) {
		t.Errorf("UniqueBy(id) = %v", ids(byID))
	}

	noID := FromMaps([]map[string]any{{"x": 1}, {"x": 1}, {"x": 2}})
	if noID.Unique().Len() != 2 {
		t.Errorf("Unique without ids = %d records", noID.Unique().Len())
	}
}

func TestAddColForms(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": "1"}, {"id": "2"}, {"id": "3"}})

	t.Run("positional", func(t *testing.T) {
		out, err := c.AddCol(Columns{"score": []int{1, 2, 3}})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{1, 2, 3}, out.Pick("score").Values()); diff != "" {
			t.Errorf("scores (-want +got):\n%s", diff)
		}
	})

	t.Run("broadcast", func(t *testing.T) {
		out, err := c.AddCol(Columns{"tag": "x"})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"x", "x", "x"}, out.Pick("tag").Values()); diff != "" {
			t.Errorf("tags (-want +got):\n%s", diff)
		}
	})

	t.Run("rows", func(t *testing.T) {
		out, err := c.AddCol(Rows{{"a": 1}, {"b": 2}, {}})
		if err != nil {
			t.Fatal(err)
		}
		r, _ := out.At(1)
		if v, _ := r.Get("b"); v != 2 || r.Has("a") {
			t.Errorf("row 1 = %v", r.Map())
		}
	})

	t.Run("func", func(t *testing.T) {
		out, err := c.AddCol(ColumnFunc(func(r record.Record, i int) map[string]any {
			return map[string]any{"label": r.ID() + "!", "pos": i}
		}))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]any{"1!", "2!", "3!"}, out.Pick("label").Values()); diff != "" {
			t.Errorf("labels (-want +got):\n%s", diff)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		if _, err := c.AddCol(Columns{"score": []int{1, 2}}); !errors.Is(err, errors.ErrCodeShapeMismatch) {
			t.Errorf("Columns mismatch err = %v", err)
		}
		if _, err := c.AddCol(Rows{{}}); !errors.Is(err, errors.ErrCodeShapeMismatch) {
			t.Errorf("Rows mismatch err = %v", err)
		}
	})
}

func TestAddRow(t *testing.T) {
	a := FromMaps([]map[string]any{{"id": "1"}})
	b := FromMaps([]map[string]any{{"id": "2"}, {"id": "3"}})
	out := a.AddRow(b, nil, a)
	if got := ids(out); !slices.Equal(got, []string{"1", "2", "3", "1"}) {
		t.Errorf("AddRow = %v", got)
	}
}

func TestAsMapLastWriteWins(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": "a", "n": 1},
		{"id": "b", "n": 2},
		{"id": "a", "n": 3},
		{"n": 4},
	})
	m := c.AsMap("")
	if len(m) != 2 {
		t.Fatalf("AsMap has %d keys", len(m))
	}
	if v, _ := m["a"].Get("n"); v != 3 {
		t.Errorf("AsMap[a].n = %v, want 3 (last write wins)", v)
	}

	byN := c.AsMap("n")
	if _, ok := byN["4"]; !ok {
		t.Errorf("AsMap(n) keys = %v", byN)
	}
}

func TestAt(t *testing.T) {
	c := sample()
	if r, ok := c.At(-1); !ok || r.ID() != "a" {
		t.Errorf("At(-1) = %v, %v", r.Map(), ok)
	}
	if _, ok := c.At(3); ok {
		t.Error("At(3) should be out of range")
	}
}
