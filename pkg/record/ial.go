package record

import (
	"html"
	"regexp"
	"strings"
)

// customPrefix marks user-defined attributes in an inline attribute list.
const customPrefix = "custom-"

var ialPair = regexp.MustCompile(`([A-Za-z][\w-]*)="([^"]*)"`)

// ParseIAL parses an inline attribute list such as
//
//	{: id="20240101120000-abcdefg" custom-status="done"}
//
// Pieces that are not key="value" pairs are skipped. Values are HTML
// unescaped.
func ParseIAL(s string) map[string]string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{:")
	s = strings.TrimSuffix(s, "}")
	out := make(map[string]string)
	for _, m := range ialPair.FindAllStringSubmatch(s, -1) {
		out[m[1]] = html.UnescapeString(m[2])
	}
	return out
}

// lookupAttr resolves name in attrs, accepting both the bare and the
// custom-prefixed spelling.
func lookupAttr(attrs map[string]string, name string) (string, bool) {
	if v, ok := attrs[name]; ok {
		return v, true
	}
	if !strings.HasPrefix(name, customPrefix) {
		if v, ok := attrs[customPrefix+name]; ok {
			return v, true
		}
	}
	return "", false
}
