// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads sessionauth configuration from a YAML file, the
// environment, and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/sessionauth/internal/auth"
)

// EnvPrefix prefixes every environment variable; "__" separates nested keys,
// so SESSIONAUTH_HTTP__ADDR sets http.addr.
const EnvPrefix = "SESSIONAUTH_"

// LegacyDatabaseURLEnv is honored when database.url is not otherwise set.
const LegacyDatabaseURLEnv = "DATABASE_URL"

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreCookie   = "cookie"
)

// Rejection policies.
const (
	RejectRedirect = "redirect"
	RejectStatus   = "status"
)

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Hasher   HasherConfig   `koanf:"hasher" yaml:"hasher"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
}

// HTTPConfig configures the public listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLSCert           string        `koanf:"tls_cert" yaml:"tls_cert"`
	TLSKey            string        `koanf:"tls_key" yaml:"tls_key"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" yaml:"url"`
	MaxConns       int32         `koanf:"max_conns" yaml:"max_conns"`
	QueryTimeout   time.Duration `koanf:"query_timeout" yaml:"query_timeout"`
	ConnectRetries uint64        `koanf:"connect_retries" yaml:"connect_retries"`
	AutoMigrate    bool          `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// SessionConfig configures the session context and cookie.
type SessionConfig struct {
	Store      string        `koanf:"store" yaml:"store"`
	CookieName string        `koanf:"cookie_name" yaml:"cookie_name"`
	MaxAge     time.Duration `koanf:"max_age" yaml:"max_age"`
	Secure     bool          `koanf:"secure" yaml:"secure"`
	HashKey    string        `koanf:"hash_key" yaml:"hash_key"`
	BlockKey   string        `koanf:"block_key" yaml:"block_key"`
	Reject     string        `koanf:"reject" yaml:"reject"`
	ErrorPath  string        `koanf:"error_path" yaml:"error_path"`
}

// HasherConfig selects the password hashing algorithm and work factor.
type HasherConfig struct {
	Algorithm  string `koanf:"algorithm" yaml:"algorithm"`
	Time       uint32 `koanf:"time" yaml:"time"`
	MemoryKiB  uint32 `koanf:"memory_kib" yaml:"memory_kib"`
	Threads    uint8  `koanf:"threads" yaml:"threads"`
	BcryptCost int    `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
}

// AuthConfig tunes the authenticator.
type AuthConfig struct {
	EqualizeTiming bool `koanf:"equalize_timing" yaml:"equalize_timing"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() Config {
	argon := auth.DefaultArgon2Params()
	return Config{
		HTTP: HTTPConfig{
			Addr:              "127.0.0.1:8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			MaxConns:       10,
			QueryTimeout:   auth.DefaultQueryTimeout,
			ConnectRetries: 5,
			AutoMigrate:    true,
		},
		Session: SessionConfig{
			Store:      StorePostgres,
			CookieName: "sessionauth",
			MaxAge:     auth.SessionTokenExpiry,
			Secure:     true,
			Reject:     RejectRedirect,
			ErrorPath:  "/auth/error",
		},
		Hasher: HasherConfig{
			Algorithm:  auth.AlgorithmArgon2id,
			Time:       argon.Time,
			MemoryKiB:  argon.MemoryKiB,
			Threads:    argon.Threads,
			BcryptCost: auth.DefaultBcryptCost,
		},
		Auth: AuthConfig{EqualizeTiming: true},
		Log:  LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":            "http.addr",
	"read-header-timeout":  "http.read_header_timeout",
	"shutdown-timeout":     "http.shutdown_timeout",
	"tls-cert":             "http.tls_cert",
	"tls-key":              "http.tls_key",
	"metrics-addr":         "metrics.addr",
	"database-url":         "database.url",
	"db-max-conns":         "database.max_conns",
	"db-query-timeout":     "database.query_timeout",
	"db-connect-retries":   "database.connect_retries",
	"db-auto-migrate":      "database.auto_migrate",
	"session-store":        "session.store",
	"session-cookie-name":  "session.cookie_name",
	"session-max-age":      "session.max_age",
	"session-secure":       "session.secure",
	"session-reject":       "session.reject",
	"hasher-algorithm":     "hasher.algorithm",
	"hasher-bcrypt-cost":   "hasher.bcrypt_cost",
	"auth-equalize-timing": "auth.equalize_timing",
	"log-format":           "log.format",
	"log-level":            "log.level",
}

// RegisterServeFlags adds the flags of the serve command, defaulted from Default.
func RegisterServeFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "HTTP listen address")
	fs.Duration("read-header-timeout", d.HTTP.ReadHeaderTimeout, "HTTP read header timeout")
	fs.Duration("shutdown-timeout", d.HTTP.ShutdownTimeout, "graceful shutdown timeout")
	fs.String("tls-cert", "", "PEM certificate for HTTPS (requires --tls-key)")
	fs.String("tls-key", "", "PEM private key for HTTPS (requires --tls-cert)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.Int32("db-max-conns", d.Database.MaxConns, "maximum database connections")
	fs.Duration("db-query-timeout", d.Database.QueryTimeout, "timeout for a single identity store query")
	fs.Uint64("db-connect-retries", d.Database.ConnectRetries, "retries for the initial database connection")
	fs.Bool("db-auto-migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String("session-store", d.Session.Store, "session backend (postgres or cookie)")
	fs.String("session-cookie-name", d.Session.CookieName, "session cookie name")
	fs.Duration("session-max-age", d.Session.MaxAge, "session lifetime")
	fs.Bool("session-secure", d.Session.Secure, "set the Secure attribute on the session cookie")
	fs.String("session-reject", d.Session.Reject, "guard rejection policy (redirect or status)")
	fs.String("hasher-algorithm", d.Hasher.Algorithm, "password hashing algorithm (argon2id or bcrypt)")
	fs.Int("hasher-bcrypt-cost", d.Hasher.BcryptCost, "bcrypt cost when bcrypt is selected")
	fs.Bool("auth-equalize-timing", d.Auth.EqualizeTiming, "spend one hash comparison on unknown identities")
	RegisterLogFlags(fs)
}

// RegisterLogFlags adds the logging flags shared by every command.
func RegisterLogFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// RegisterDatabaseFlags adds the database URL flag.
func RegisterDatabaseFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL (default: $"+LegacyDatabaseURLEnv+")")
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// the environment, and fs. Flags only override when set explicitly or when
// no earlier layer provided the key.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "load environment").Wrap(err)
	}

	if !k.Exists("database.url") {
		if legacy := os.Getenv(LegacyDatabaseURLEnv); legacy != "" {
			if err := k.Set("database.url", legacy); err != nil {
				return nil, oops.Code("CONFIG_INVALID").With("operation", "apply "+LegacyDatabaseURLEnv).Wrap(err)
			}
		}
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode configuration").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns SESSIONAUTH_SESSION__MAX_AGE into session.max_age.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// Validate checks that the configuration is usable by serve. Database URL
// presence is checked separately by the commands that need it.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		add("http.read_header_timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		add("http.shutdown_timeout must be positive")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		add("http.tls_cert and http.tls_key must be set together")
	}
	if c.Database.QueryTimeout <= 0 {
		add("database.query_timeout must be positive")
	}
	if c.Database.MaxConns < 0 {
		add("database.max_conns must not be negative")
	}

	switch c.Session.Store {
	case StorePostgres:
	case StoreCookie:
		if len(c.Session.HashKey) < 32 {
			add("session.hash_key must be at least 32 bytes for the cookie store")
		}
		switch len(c.Session.BlockKey) {
		case 0, 16, 24, 32:
		default:
			add("session.block_key must be 16, 24, or 32 bytes")
		}
	default:
		add("session.store must be %q or %q, got %q", StorePostgres, StoreCookie, c.Session.Store)
	}
	if c.Session.CookieName == "" {
		add("session.cookie_name is required")
	}
	if c.Session.MaxAge <= 0 {
		add("session.max_age must be positive")
	}
	switch c.Session.Reject {
	case RejectRedirect:
		if !strings.HasPrefix(c.Session.ErrorPath, "/") {
			add("session.error_path must be an absolute path")
		}
	case RejectStatus:
	default:
		add("session.reject must be %q or %q, got %q", RejectRedirect, RejectStatus, c.Session.Reject)
	}

	if _, err := c.Hasher.Build(); err != nil {
		add("hasher: %v", err)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		add("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Build constructs the configured password hasher.
func (h HasherConfig) Build() (*auth.MultiHasher, error) {
	return auth.NewPasswordHasher(auth.HasherConfig{
		Algorithm: h.Algorithm,
		Argon2: auth.Argon2Params{
			Time:      h.Time,
			MemoryKiB: h.MemoryKiB,
			Threads:   h.Threads,
		},
		BcryptCost: h.BcryptCost,
	})
}

// TLSEnabled reports whether the auth listener serves HTTPS.
func (c Config) TLSEnabled() bool {
	return c.HTTP.TLSCert != "" && c.HTTP.TLSKey != ""
}

// DatabaseURL returns the configured database URL or a CONFIG_INVALID error
// when none of the layers set it.
func (c *Config) DatabaseURL() (string, error) {
	if c.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			Errorf("database url is required (--database-url, %sDATABASE__URL, or %s)", EnvPrefix, LegacyDatabaseURLEnv)
	}
	return c.Database.URL, nil
}

// redactedMarker replaces secret values in Redacted output.
const redactedMarker = "[redacted]"

// Redacted returns a copy safe to print: the database password and the
// cookie keys are masked.
func (c Config) Redacted() Config {
	out := c
	if out.Database.URL != "" {
		if u, err := url.Parse(out.Database.URL); err == nil {
			out.Database.URL = u.Redacted()
		} else {
			out.Database.URL = redactedMarker
		}
	}
	if out.Session.HashKey != "" {
		out.Session.HashKey = redactedMarker
	}
	if out.Session.BlockKey != "" {
		out.Session.BlockKey = redactedMarker
	}
	return out
}
