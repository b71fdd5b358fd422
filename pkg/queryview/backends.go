package queryview

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frostime/sy-query-view/pkg/attrs"
	"github.com/frostime/sy-query-view/pkg/cache"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/httputil"
	"github.com/frostime/sy-query-view/pkg/query"
	"github.com/frostime/sy-query-view/pkg/view"
)

// Backends are the collaborators built from a [Config].
type Backends struct {
	Source  query.Source
	Cache   cache.Cache
	Keyer   cache.Keyer
	TTL     time.Duration
	Durable attrs.Store
	Custom  map[string]view.Definition

	closers []func() error
}

// Open builds every backend named by cfg. On error the backends opened so
// far are closed.
func Open(ctx context.Context, cfg *Config) (b *Backends, err error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	b = &Backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var kernel *query.Kernel
	switch cfg.Query.Backend {
	case "sqlite":
		s, err := query.OpenSQLite(cfg.Query.DSN)
		if err != nil {
			return nil, err
		}
		b.Source = s
	case "postgres":
		s, err := query.OpenPostgres(ctx, cfg.Query.DSN)
		if err != nil {
			return nil, err
		}
		b.Source = s
	case "kernel":
		kernel = query.NewKernel(query.KernelConfig{
			URL:     cfg.Query.URL,
			Token:   cfg.Query.Token,
			Timeout: cfg.Query.Timeout,
			Retry:   httputil.DefaultPolicy,
		})
		b.Source = kernel
	}
	b.closers = append(b.closers, b.Source.Close)

	switch cfg.Cache.Backend {
	case "memory":
		b.Cache = cache.NewMemoryCache()
	case "file":
		c, err := cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "open file cache")
		}
		b.Cache = c
	case "redis":
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   "queryview:",
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect redis cache")
		}
		b.Cache = c
	case "none":
		b.Cache = cache.NewNullCache()
	}
	b.Cache = cache.Instrument(b.Cache)
	b.Keyer = cache.NewDefaultKeyer()
	if cfg.Cache.Namespace != "" {
		b.Keyer = cache.NewScopedKeyer(b.Keyer, cfg.Cache.Namespace)
	}
	b.TTL = cfg.Cache.TTL
	b.closers = append(b.closers, b.Cache.Close)

	switch cfg.State.Backend {
	case "memory":
		b.Durable = attrs.NewMemoryStore()
	case "file":
		s, err := attrs.NewFileStore(cfg.State.Dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "open file state store")
		}
		b.Durable = s
	case "sqlite":
		s, err := attrs.NewSQLiteStore(cfg.State.Path)
		if err != nil {
			return nil, err
		}
		b.Durable = s
	case "mongo":
		s, err := attrs.NewMongoStore(ctx, attrs.MongoConfig{
			URI:        cfg.State.MongoURI,
			Database:   cfg.State.MongoDatabase,
			Collection: cfg.State.MongoCollection,
		})
		if err != nil {
			return nil, err
		}
		b.Durable = s
	case "s3":
		s, err := attrs.NewS3Store(ctx, attrs.S3Config{
			Region:          cfg.State.S3Region,
			Bucket:          cfg.State.S3Bucket,
			Prefix:          cfg.State.S3Prefix,
			Endpoint:        cfg.State.S3Endpoint,
			AccessKeyID:     cfg.State.S3AccessKey,
			SecretAccessKey: cfg.State.S3SecretKey,
			PathStyle:       cfg.State.S3Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		b.Durable = s
	case "kernel":
		if kernel == nil {
			kernel = query.NewKernel(query.KernelConfig{URL: cfg.Query.URL, Token: cfg.Query.Token, Timeout: cfg.Query.Timeout})
		}
		b.Durable = kernel
	}
	b.closers = append(b.closers, b.Durable.Close)

	if cfg.Views.Module != "" {
		defs, err := view.LoadTemplates(cfg.Views.Module)
		if err != nil {
			return nil, err
		}
		b.Custom = defs
	}
	return b, nil
}

// Options returns instance options wired to the backends.
func (b *Backends) Options(logger *log.Logger) Options {
	return Options{
		Source:  b.Source,
		Cache:    b.Cache,
		Keyer:    b.Keyer,
		StateTTL: b.TTL,
		Durable:  b.Durable,
		Custom:   b.Custom,
		Logger:   logger,
	}
}

// Close closes every backend, last opened first.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
