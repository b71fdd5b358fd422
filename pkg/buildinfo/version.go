// Package buildinfo holds version information injected at link time:
//
//	go build -ldflags "-X github.com/frostime/sy-query-view/pkg/buildinfo.Version=v0.4.0 \
//	    -X github.com/frostime/sy-query-view/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/frostime/sy-query-view/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/queryview
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n", Version, Commit, Date)
}
