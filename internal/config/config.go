// Package config loads runtime settings from defaults, an optional YAML file,
// MIRNADB_* environment variables and bound command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override ("store.kind" -> MIRNADB_STORE_KIND).
const EnvPrefix = "MIRNADB"

// Store backend kinds.
const (
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindMSSQL    = "mssql"
)

type Config struct {
	Store     StoreConfig   `mapstructure:"store"`
	DataDir   string        `mapstructure:"data_dir"`
	Catalogue string        `mapstructure:"catalogue"`
	CacheDir  string        `mapstructure:"cache_dir"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	Log       LogConfig     `mapstructure:"log"`
	Serve     ServeConfig   `mapstructure:"serve"`
}

type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// DSN is the connection string for server backends. $VAR references are expanded.
	DSN string `mapstructure:"dsn"`
	// Stamp is the file marking a server-backed store as built.
	Stamp string `mapstructure:"stamp"`
}

type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	ExportURL string        `mapstructure:"export_url"`
	UserAgent string        `mapstructure:"user_agent"`
}

type MetricsConfig struct {
	Backend    string        `mapstructure:"backend"`
	Tags       []string      `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.kind", KindSQLite)
	v.SetDefault("store.path", "miRNA.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.stamp", ".mirnadb.built")
	v.SetDefault("data_dir", ".")
	v.SetDefault("catalogue", "")
	v.SetDefault("cache_dir", filepath.Join(".cache", "archives"))
	v.SetDefault("http.timeout", 10*time.Minute)
	v.SetDefault("http.export_url", "https://drive.google.com/uc")
	v.SetDefault("http.user_agent", "mirnadb/1.0")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.tags", []string{})
	v.SetDefault("metrics.flush_every", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("serve.addr", "127.0.0.1:8501")
}

// Load reads configuration into a Config. file may be empty. Flags already
// bound to v take precedence over everything else.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store.DSN = os.ExpandEnv(cfg.Store.DSN)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Kind {
	case KindSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case KindPostgres, KindMSSQL:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Kind))
		}
		if strings.TrimSpace(c.Store.Stamp) == "" {
			errs = append(errs, fmt.Errorf("store.stamp is required for %s", c.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q: want sqlite, postgres or mssql", c.Store.Kind))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if u, err := url.Parse(c.HTTP.ExportURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("http.export_url %q is not an absolute URL", c.HTTP.ExportURL))
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		errs = append(errs, errors.New("cache_dir is required"))
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errs = append(errs, fmt.Errorf("metrics.backend %q: want none or datadog", c.Metrics.Backend))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	if strings.TrimSpace(c.Serve.Addr) == "" {
		errs = append(errs, errors.New("serve.addr is required"))
	}

	return errors.Join(errs...)
}

// ServerBacked reports whether the store lives outside the local filesystem.
func (c Config) ServerBacked() bool {
	return c.Store.Kind == KindPostgres || c.Store.Kind == KindMSSQL
}

// GateLocation is the path whose existence marks the store as built: the
// database file for SQLite, the stamp file otherwise.
func (c Config) GateLocation() string {
	if c.ServerBacked() {
		return c.Store.Stamp
	}
	return c.Store.Path
}

// StoreDSN is what the storage backend opens.
func (c Config) StoreDSN() string {
	if c.ServerBacked() {
		return c.Store.DSN
	}
	return c.Store.Path
}
