package record

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestRecordGet(t *testing.T) {
	r := New(map[string]any{"id": "a", "type": "d", "score": 3})

	if v, ok := r.Get("id"); !ok || v != "a" {
		t.Errorf("Get(id) = %v, %v", v, ok)
	}
	if v, ok := r.Get("score"); !ok || v != 3 {
		t.Errorf("Get(score) = %v, %v", v, ok)
	}
	if v, ok := r.Get("missing"); ok || v != nil {
		t.Errorf("Get(missing) = %v, %v, want absent", v, ok)
	}
	if r.ID() != "a" || r.Type() != "d" {
		t.Errorf("typed accessors = %q %q", r.ID(), r.Type())
	}
}

func TestRecordKnownFieldNonString(t *testing.T) {
	r := New(map[string]any{"content": "text"}).With(map[string]any{"content": 42})

	if v, _ := r.Get("content"); v != 42 {
		t.Errorf("Get(content) = %v, want 42", v)
	}
	if r.Content() != "42" {
		t.Errorf("Content() = %q", r.Content())
	}
	if got := r.Fields(); !slices.Equal(got, []string{"content"}) {
		t.Errorf("Fields() = %v", got)
	}
}

func TestRecordCopyOnWrite(t *testing.T) {
	orig := New(map[string]any{"id": "a", "extra": "x"})

	with := orig.With(map[string]any{"extra": "y", "id": "b"})
	without := orig.Without("extra")

	if orig.ID() != "a" || orig.Text("extra") != "x" {
		t.Fatalf("original mutated: %v", orig.Map())
	}
	if with.ID() != "b" || with.Text("extra") != "y" {
		t.Errorf("With = %v", with.Map())
	}
	if without.Has("extra") || !without.Has("id") {
		t.Errorf("Without = %v", without.Map())
	}
}

func TestRecordFieldsOrder(t *testing.T) {
	r := New(map[string]any{"zeta": 1, "content": "c", "id": "a", "alpha": 2})
	want := []string{"id", "content", "alpha", "zeta"}
	if got := r.Fields(); !slices.Equal(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestRecordOnly(t *testing.T) {
	r := New(map[string]any{"id": "a", "type": "d", "x": 1})
	got := r.Only("type", "x", "missing")
	if !slices.Equal(got.Fields(), []string{"type", "x"}) {
		t.Errorf("Only = %v", got.Fields())
	}
}

func TestRecordEqual(t *testing.T) {
	a := New(map[string]any{"id": "a", "n": 1})
	b := New(map[string]any{"n": 1.0, "id": "a"})
	c := New(map[string]any{"id": "a", "n": 2})

	if !a.Equal(b) {
		t.Error("numerically equal records should be equal")
	}
	if a.Equal(c) {
		t.Error("different values should not be equal")
	}
}

func TestRecordJSON(t *testing.T) {
	r := New(map[string]any{"id": "a", "score": 1.5})
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"id":"a","score":1.5}` {
		t.Errorf("Marshal = %s", data)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(r) {
		t.Errorf("round trip = %v, want %v", back.Map(), r.Map())
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{1, 2, -1},
		{2.5, 2, 1},
		{int64(3), 3.0, 0},
		{"a", "b", -1},
		{nil, "a", -1},
		{"a", nil, 1},
		{nil, nil, 0},
		{false, true, -1},
	}
	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"d", "d"},
		{3, "3"},
		{2.5, "2.5"},
		{true, "true"},
		{New(map[string]any{"id": "a"}), `{"id":"a"}`},
	}
	for _, tt := range tests {
		if got := KeyOf(tt.in); got != tt.want {
			t.Errorf("KeyOf(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordEmptyKnownFieldIsPresent(t *testing.T) {
	r := New(map[string]any{"id": "a", "name": "", "alias": "", "extra": ""})

	if v, ok := r.Get("name"); !ok || v != "" {
		t.Errorf("Get(name) = %v, %v, want present empty string", v, ok)
	}
	want := []string{"id", "name", "alias", "extra"}
	if got := r.Fields(); !slices.Equal(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if got := r.Only("id", "name").Fields(); !slices.Equal(got, []string{"id", "name"}) {
		t.Errorf("Only(id, name) = %v", got)
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"alias":"","extra":"","id":"a","name":""}` {
		t.Errorf("Marshal = %s", data)
	}
	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(r) {
		t.Errorf("round trip = %v, want %v", back.Map(), r.Map())
	}

	without := r.Without("name")
	if without.Has("name") {
		t.Error("Without(name) kept the field")
	}
	if without.Equal(r) {
		t.Error("record with an empty field equals one without it")
	}
}
