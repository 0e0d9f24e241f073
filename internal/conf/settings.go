// Package conf holds the gateway configuration: where to listen, which
// upstream and backend origins to proxy, the cache generation names, the
// install-time asset manifest, and storage settings. Configuration is read
// from a YAML file with TIMEZEN_-prefixed environment overrides via viper.
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the root configuration object.
type Settings struct {
	Listen   string           `mapstructure:"listen"`
	Upstream string           `mapstructure:"upstream"`
	Backend  BackendSettings  `mapstructure:"backend"`
	Cache    CacheSettings    `mapstructure:"cache"`
	State    StateSettings    `mapstructure:"state"`
	Refresh  RefreshSettings  `mapstructure:"refresh"`
	Database DatabaseSettings `mapstructure:"database"`
	Log      LogSettings      `mapstructure:"log"`
	Sentry   SentrySettings   `mapstructure:"sentry"`
}

// BackendSettings describes the realtime-sync backend.
type BackendSettings struct {
	// Origins are substrings matched against a request's host to classify
	// it as a backend request (read-through caching, no offline page).
	Origins []string `mapstructure:"origins"`
	// Routes maps gateway path prefixes to backend base URLs so app pages
	// can reach the sync backend through the gateway.
	Routes map[string]string `mapstructure:"routes"`
}

// CacheSettings controls the named response caches.
type CacheSettings struct {
	// StaticName and RuntimeName are the version-tagged cache names.
	// Bumping either name is the only mechanism that retires the previous
	// generation's entries on activation.
	StaticName  string `mapstructure:"static_name"`
	RuntimeName string `mapstructure:"runtime_name"`
	// StaticAssets is the install-time precache manifest. The offline
	// fallback page must be listed here.
	StaticAssets []string `mapstructure:"static_assets"`
	// OfflinePage is the path of the cached HTML document served when an
	// HTML navigation misses both network and cache.
	OfflinePage string `mapstructure:"offline_page"`
	// HotTTL bounds how long entries stay in the in-memory hot layer.
	HotTTL Duration `mapstructure:"hot_ttl"`
	// RuntimeMaxAge prunes runtime entries older than this; zero disables
	// the janitor.
	RuntimeMaxAge Duration `mapstructure:"runtime_max_age"`
	// JanitorInterval is how often the janitor prunes old runtime entries.
	JanitorInterval Duration `mapstructure:"janitor_interval"`
	// SkipWaiting activates a freshly installed generation immediately
	// instead of waiting for a SKIP_WAITING control message.
	SkipWaiting bool `mapstructure:"skip_waiting"`
	// InstallConcurrency bounds parallel manifest fetches during install.
	InstallConcurrency int `mapstructure:"install_concurrency"`
	// InstallTimeout is the per-asset fetch deadline during install.
	InstallTimeout Duration `mapstructure:"install_timeout"`
}

// StateSettings controls the dual-scope key/value store.
type StateSettings struct {
	// SessionTTL is the idle lifetime of session-scoped entries.
	SessionTTL Duration `mapstructure:"session_ttl"`
	// CookieSecret signs the session cookie. Random per start when empty.
	CookieSecret string `mapstructure:"cookie_secret"`
}

// RefreshSettings controls the backend resource refresh controller.
type RefreshSettings struct {
	Interval Duration `mapstructure:"interval"`
}

// DatabaseSettings selects the persistence backend for caches and durable state.
type DatabaseSettings struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
	// DSN is the mysql connection string when Driver is "mysql".
	DSN string `mapstructure:"dsn"`
}

// LogSettings controls structured logging.
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// SentrySettings controls opt-in error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// Load reads configuration from the given file path. An empty path loads
// defaults plus environment overrides only.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TIMEZEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks invariants the rest of the gateway relies on.
func (s *Settings) Validate() error {
	if s.Upstream == "" {
		return fmt.Errorf("upstream base URL is required")
	}
	if s.Cache.StaticName == "" || s.Cache.RuntimeName == "" {
		return fmt.Errorf("cache names must be non-empty")
	}
	if s.Cache.StaticName == s.Cache.RuntimeName {
		return fmt.Errorf("static and runtime cache names must differ")
	}
	if s.Cache.OfflinePage != "" && !containsString(s.Cache.StaticAssets, s.Cache.OfflinePage) {
		// The offline page must be guaranteed cacheable at install time,
		// otherwise an HTML miss degrades to the generic 503 path.
		return fmt.Errorf("offline page %s must be listed in static_assets", s.Cache.OfflinePage)
	}
	switch s.Database.Driver {
	case "", "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", s.Database.Driver)
	}
	return nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
