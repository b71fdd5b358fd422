package query

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/httputil"
	"github.com/frostime/sy-query-view/pkg/record"
)

// Host kernel endpoints.
const (
	pathQuerySQL      = "/api/query/sql"
	pathGetBlockAttrs = "/api/attr/getBlockAttrs"
	pathSetBlockAttrs = "/api/attr/setBlockAttrs"
	pathLsNotebooks   = "/api/notebook/lsNotebooks"
)

// KernelConfig configures a [Kernel] client.
type KernelConfig struct {
	URL   string // default http://127.0.0.1:6806
	Token string

	Timeout time.Duration
	Retry   httputil.Policy
}

// Kernel talks to a running host over its HTTP API. Besides [Backend] it
// implements the attribute store contract (Read, Write, Close) used by the
// durable state tier.
type Kernel struct {
	client *httputil.Client

	mu        sync.Mutex
	notebooks map[string]string
}

// envelope is the host's response wrapper. A non-zero Code is a failure.
type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

// NewKernel creates a kernel client.
func NewKernel(cfg KernelConfig, opts ...httputil.ClientOption) *Kernel {
	if cfg.URL == "" {
		cfg.URL = "http://127.0.0.1:6806"
	}
	var base []httputil.ClientOption
	if cfg.Token != "" {
		base = append(base, httputil.WithHeader("Authorization", "Token "+cfg.Token))
	}
	if cfg.Retry.Attempts > 0 {
		base = append(base, httputil.WithPolicy(cfg.Retry))
	}
	k := &Kernel{client: httputil.NewClient(cfg.URL, append(base, opts...)...)}
	if cfg.Timeout > 0 {
		k.client.SetTimeout(cfg.Timeout)
	}
	return k
}

func call[T any](ctx context.Context, k *Kernel, path string, in any) (T, error) {
	var env envelope[T]
	if err := k.client.PostJSON(ctx, path, in, &env); err != nil {
		return env.Data, err
	}
	if env.Code != 0 {
		return env.Data, errors.New(errors.ErrCodeInvalidInput, "%s: %s (code %d)", path, env.Msg, env.Code)
	}
	return env.Data, nil
}

// Query implements [Source]. Positional args are not supported by the host
// endpoint and are rejected.
func (k *Kernel) Query(ctx context.Context, stmt string, args ...any) ([]record.Record, error) {
	if len(args) > 0 {
		return nil, errors.New(errors.ErrCodeUnsupported, "kernel queries take no arguments")
	}
	rows, err := call[[]map[string]any](ctx, k, pathQuerySQL, map[string]string{"stmt": stmt})
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, len(rows))
	for i, m := range rows {
		out[i] = record.New(m)
	}
	return out, nil
}

// Read returns the attributes of block id.
func (k *Kernel) Read(ctx context.Context, id string) (map[string]string, error) {
	attrs, err := call[map[string]string](ctx, k, pathGetBlockAttrs, map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return attrs, nil
}

// Write sets attributes on block id in one request. The host deletes
// attributes written with an empty value.
func (k *Kernel) Write(ctx context.Context, id string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	_, err := call[any](ctx, k, pathSetBlockAttrs, map[string]any{"id": id, "attrs": attrs})
	return err
}

// Notebooks returns notebook names by id. The list is fetched once.
func (k *Kernel) Notebooks(ctx context.Context) (map[string]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.notebooks != nil {
		return maps.Clone(k.notebooks), nil
	}
	type notebook struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	data, err := call[struct {
		Notebooks []notebook `json:"notebooks"`
	}](ctx, k, pathLsNotebooks, struct{}{})
	if err != nil {
		return nil, err
	}
	k.notebooks = make(map[string]string, len(data.Notebooks))
	for _, nb := range data.Notebooks {
		k.notebooks[nb.ID] = nb.Name
	}
	return maps.Clone(k.notebooks), nil
}

// NotebookName implements [record.Lookup].
func (k *Kernel) NotebookName(box string) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	nbs, err := k.Notebooks(ctx)
	if err != nil {
		return ""
	}
	return nbs[box]
}

// Attrs implements [record.Lookup].
func (k *Kernel) Attrs(id string) map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	attrs, err := k.Read(ctx, id)
	if err != nil {
		return nil
	}
	return attrs
}

// Close is a no-op; the client holds no connections of its own.
func (k *Kernel) Close() error { return nil }
