package view

// Capability identifies a built-in view.
type Capability int

const (
	CapTable Capability = iota
	CapList
	CapText
	CapMarkdown
	CapMermaid
	CapGraph
	CapEmbed

	numCapabilities
)

// String returns the canonical view name.
func (c Capability) String() string {
	if c < 0 || c >= numCapabilities {
		return "unknown"
	}
	return builtins[c].name
}

type builtin struct {
	name    string
	aliases []string
	ctor    Constructor
}

// builtins is indexed by Capability.
var builtins = [numCapabilities]builtin{
	CapTable:    {"table", []string{"datatable"}, tableView},
	CapList:     {"list", []string{"ul"}, listView},
	CapText:     {"text", []string{"paragraph"}, textView},
	CapMarkdown: {"markdown", []string{"md"}, markdownView},
	CapMermaid:  {"mermaid", nil, mermaidView},
	CapGraph:    {"graph", []string{"dot", "graphviz"}, graphView},
	CapEmbed:    {"embed", []string{"blocks"}, embedView},
}
