package queryview

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frostime/sy-query-view/pkg/errors"
)

// Config is the queryview.toml file.
//
//	[query]
//	backend = "kernel"
//	url = "http://127.0.0.1:6806"
//	token = "..."
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//
//	[state]
//	backend = "sqlite"
//	path = "~/.config/queryview/state.db"
type Config struct {
	Query  QueryConfig  `toml:"query"`
	Cache  CacheConfig  `toml:"cache"`
	State  StateConfig  `toml:"state"`
	Views  ViewsConfig  `toml:"views"`
	Server ServerConfig `toml:"server"`
	Events EventsConfig `toml:"events"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// QueryConfig selects the query backend.
type QueryConfig struct {
	Backend string        `toml:"backend"` // sqlite, postgres or kernel
	DSN     string        `toml:"dsn"`     // sqlite path or postgres DSN
	URL     string        `toml:"url"`     // kernel base URL
	Token   string        `toml:"token"`   // kernel API token
	Timeout time.Duration `toml:"timeout"`
}

// CacheConfig selects the fast state tier.
type CacheConfig struct {
	Backend       string        `toml:"backend"` // memory, file, redis or none
	Dir           string        `toml:"dir"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	TTL           time.Duration `toml:"ttl"`

	// Namespace scopes state keys so several deployments can share one
	// cache. Empty means unscoped.
	Namespace string `toml:"namespace"`
}

// StateConfig selects the durable state tier.
type StateConfig struct {
	Backend string `toml:"backend"` // memory, file, sqlite, mongo, s3 or kernel

	Dir  string `toml:"dir"`  // file
	Path string `toml:"path"` // sqlite

	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`

	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Prefix    string `toml:"s3_prefix"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
}

// ViewsConfig points at the custom view module.
type ViewsConfig struct {
	Module string `toml:"module"`
}

// ServerConfig configures `queryview serve`.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	Metrics bool   `toml:"metrics"`

	// AllowedOrigins are the browser origins allowed to open the event
	// stream besides the server's own host.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// EventsConfig configures the cross-process event bridge.
type EventsConfig struct {
	RedisAddr string `toml:"redis_addr"`
	Channel   string `toml:"channel"`
}

var (
	queryBackends = []string{"sqlite", "postgres", "kernel"}
	cacheBackends = []string{"memory", "file", "redis", "none"}
	stateBackends = []string{"memory", "file", "sqlite", "mongo", "s3", "kernel"}
)

// LoadConfig reads a config file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", path)
		}
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfigPath returns ~/.config/queryview/queryview.toml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "queryview.toml"
	}
	return filepath.Join(dir, "queryview", "queryview.toml")
}

// DefaultCacheDir returns ~/.cache/queryview.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "queryview")
	}
	return filepath.Join(dir, "queryview")
}

// ValidateAndSetDefaults checks backend names and applies defaults.
// This method is idempotent.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}
	c.SetDefaults()
	if !slices.Contains(queryBackends, c.Query.Backend) {
		return errors.New(errors.ErrCodeInvalidInput, "unknown query backend %q", c.Query.Backend)
	}
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
	if !slices.Contains(stateBackends, c.State.Backend) {
		return errors.New(errors.ErrCodeInvalidInput, "unknown state backend %q", c.State.Backend)
	}
	if c.Query.Backend == "postgres" && c.Query.DSN == "" {
		return errors.New(errors.ErrCodeInvalidInput, "postgres backend needs a dsn")
	}
	if c.State.Backend == "mongo" && c.State.MongoURI == "" {
		return errors.New(errors.ErrCodeInvalidInput, "mongo state backend needs mongo_uri")
	}
	if c.State.Backend == "s3" && c.State.S3Bucket == "" {
		return errors.New(errors.ErrCodeInvalidInput, "s3 state backend needs s3_bucket")
	}
	c.validated = true
	return nil
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Query.Backend == "" {
		c.Query.Backend = "kernel"
	}
	if c.Query.Backend == "kernel" && c.Query.URL == "" {
		c.Query.URL = "http://127.0.0.1:6806"
	}
	if c.Query.Backend == "sqlite" && c.Query.DSN == "" {
		c.Query.DSN = "siyuan.db"
	}
	if c.Query.Timeout == 0 {
		c.Query.Timeout = 10 * time.Second
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(DefaultCacheDir(), "state")
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}

	if c.State.Backend == "" {
		if c.Query.Backend == "kernel" {
			c.State.Backend = "kernel"
		} else {
			c.State.Backend = "file"
		}
	}
	if c.State.Backend == "file" && c.State.Dir == "" {
		c.State.Dir = filepath.Join(DefaultCacheDir(), "attrs")
	}
	if c.State.Backend == "sqlite" && c.State.Path == "" {
		c.State.Path = filepath.Join(DefaultCacheDir(), "state.db")
	}
	if c.State.MongoDatabase == "" {
		c.State.MongoDatabase = "queryview"
	}
	if c.State.MongoCollection == "" {
		c.State.MongoCollection = "block_attrs"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Events.Channel == "" {
		c.Events.Channel = "queryview:events"
	}
}
