package view

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/frostime/sy-query-view/pkg/collection"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/surface"
)

// TemplateFile is the on-disk layout of a custom view module:
//
//	[views.card]
//	alias = ["cards"]
//	template = """
//	{{range .Records}}<div class="card">{{.content}}</div>{{end}}
//	"""
type TemplateFile struct {
	Views map[string]TemplateView `toml:"views"`
}

// TemplateView is one template-backed view.
type TemplateView struct {
	Alias    []string `toml:"alias"`
	Template string   `toml:"template"`
}

// templateData is passed to every view template.
type templateData struct {
	Records []map[string]any
	Values  []any
	Args    []any
}

// LoadTemplates reads a TOML custom view module from path.
func LoadTemplates(path string) (map[string]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open view module %s", path)
	}
	defer f.Close()
	return DecodeTemplates(f)
}

// DecodeTemplates parses a TOML custom view module. A template that fails
// to parse yields a definition whose Use reports the parse error, so the
// failure surfaces when the definitions are loaded.
func DecodeTemplates(r io.Reader) (map[string]Definition, error) {
	var file TemplateFile
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode view module")
	}
	defs := make(map[string]Definition, len(file.Views))
	for name, tv := range file.Views {
		defs[name] = templateDefinition(name, tv)
	}
	return defs, nil
}

func templateDefinition(name string, tv TemplateView) Definition {
	t, parseErr := template.New(name).Option("missingkey=zero").Parse(strings.TrimSpace(tv.Template))
	return Definition{
		Alias: tv.Alias,
		Use: func(Context) (*Custom, error) {
			if parseErr != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidRegistration, parseErr, "parse template of view %q", name)
			}
			return &Custom{Render: templateRenderer(name, t)}, nil
		},
	}
}

func templateRenderer(name string, t *template.Template) Constructor {
	return func(_ context.Context, args ...any) (*surface.Fragment, error) {
		var data templateData
		if len(args) > 0 {
			c := collection.Wrap(args[0])
			data.Values = c.Values()
			for _, r := range c.Records() {
				data.Records = append(data.Records, r.Map())
			}
			data.Args = args[1:]
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailure, err, "execute template of view %q", name)
		}
		return surface.NewFragment(name, template.HTML(buf.String())), nil
	}
}
