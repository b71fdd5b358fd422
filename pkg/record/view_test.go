package record

import "testing"

func TestParseIAL(t *testing.T) {
	got := ParseIAL(`{: id="20240101120000-abcdefg" custom-status="done &amp; dusted" bad updated="20240102"}`)
	want := map[string]string{
		"id":            "20240101120000-abcdefg",
		"custom-status": "done & dusted",
		"updated":       "20240102",
	}
	if len(got) != len(want) {
		t.Fatalf("ParseIAL = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ParseIAL[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestViewAttr(t *testing.T) {
	r := New(map[string]any{
		"id":  "b1",
		"ial": `{: custom-status="done"}`,
	})
	lookup := StaticLookup{
		Attributes: map[string]map[string]string{"b1": {"custom-owner": "ann", "status": "ignored"}},
	}
	v := NewView(r, lookup)

	tests := []struct {
		name string
		want string
	}{
		{"status", "done"},
		{"custom-status", "done"},
		{"owner", "ann"},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := v.Attr(tt.name); got != tt.want {
			t.Errorf("Attr(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestViewDates(t *testing.T) {
	v := NewView(New(map[string]any{"created": "20240305143007", "updated": "bogus"}), nil)

	if got := v.CreatedDate(); got != "2024-03-05" {
		t.Errorf("CreatedDate() = %q", got)
	}
	if got := v.CreatedTime(); got != "14:30:07" {
		t.Errorf("CreatedTime() = %q", got)
	}
	if got := v.UpdatedDate(); got != "" {
		t.Errorf("UpdatedDate() with malformed stamp = %q, want empty", got)
	}
}

func TestViewLinks(t *testing.T) {
	v := NewView(New(map[string]any{"id": "b1", "content": "Hello [world]", "box": "nb"}),
		StaticLookup{Notebooks: map[string]string{"nb": "Journal"}})

	if got := v.Link(); got != "siyuan://blocks/b1" {
		t.Errorf("Link() = %q", got)
	}
	if got := v.RefText(); got != `((b1 "Hello [world]"))` {
		t.Errorf("RefText() = %q", got)
	}
	if got := v.MarkdownLink(); got != `[Hello \[world\]](siyuan://blocks/b1)` {
		t.Errorf("MarkdownLink() = %q", got)
	}
	if got := v.Notebook(); got != "Journal" {
		t.Errorf("Notebook() = %q", got)
	}

	empty := NewView(Record{}, nil)
	if empty.Link() != "" || empty.RefText() != "" {
		t.Error("record without id should produce empty links")
	}
}
