package surface

import (
	"fmt"
	"html/template"
	"io"
	"slices"
	"sync"
)

// Surface is the engine-owned root container. Fragments keep the order in
// which they were attached.
type Surface struct {
	id string

	mu        sync.Mutex
	fragments []*Fragment
}

// ID returns the root container id.
func (s *Surface) ID() string { return s.id }

// Len returns the number of attached fragments.
func (s *Surface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fragments)
}

// Fragments returns the attached fragments in order.
func (s *Surface) Fragments() []*Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fragments)
}

func (s *Surface) indexLocked(id string) int {
	return slices.IndexFunc(s.fragments, func(f *Fragment) bool { return f.ID == id })
}

// IndexOf returns the position of the fragment with id, or -1.
func (s *Surface) IndexOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id)
}

// Get returns the fragment with id.
func (s *Surface) Get(id string) (*Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.fragments[i], true
	}
	return nil, false
}

// Append attaches f after every existing fragment.
func (s *Surface) Append(f *Fragment) error {
	return s.Insert(-1, f)
}

// Insert attaches f at position i; a negative or out-of-range i appends.
// Fragment ids must be unique within the surface.
func (s *Surface) Insert(i int, f *Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(f.ID) >= 0 {
		return fmt.Errorf("fragment %s already attached", f.ID)
	}
	if i < 0 || i > len(s.fragments) {
		i = len(s.fragments)
	}
	s.fragments = slices.Insert(s.fragments, i, f)
	return nil
}

// Remove detaches the fragment with id and returns it.
func (s *Surface) Remove(id string) (*Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	f := s.fragments[i]
	s.fragments = slices.Delete(s.fragments, i, i+1)
	return f, true
}

// Replace swaps the fragment with id for f at the same position and
// returns the detached one. f takes over the id.
func (s *Surface) Replace(id string, f *Fragment) (*Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	old := s.fragments[i]
	f.ID = id
	s.fragments[i] = f
	return old, true
}

// Clear detaches every fragment.
func (s *Surface) Clear() []*Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.fragments
	s.fragments = nil
	return out
}

var pageTmpl = template.Must(template.New("surface").Parse(
	`<div class="query-view" data-root-id="{{.ID}}">
{{- range .Fragments}}
<div class="query-view__fragment" data-fragment-id="{{.ID}}" data-kind="{{.Kind}}"{{range $k, $v := .Attrs}} data-{{$k}}="{{$v}}"{{end}}>{{.HTML}}</div>
{{- end}}
</div>
`))

type fragmentData struct {
	ID, Kind string
	Attrs    map[string]string
	HTML     template.HTML
}

// WriteHTML renders the root container and its fragments.
func (s *Surface) WriteHTML(w io.Writer) error {
	frags := s.Fragments()
	data := struct {
		ID        string
		Fragments []fragmentData
	}{ID: s.id}
	for _, f := range frags {
		data.Fragments = append(data.Fragments, fragmentData{ID: f.ID, Kind: f.Kind, Attrs: f.attrs(), HTML: f.HTML})
	}
	return pageTmpl.Execute(w, data)
}
