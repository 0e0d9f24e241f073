package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default cache generation names. These mirror the deployed frontend's
// expectations; bump the suffix to retire a generation on next activation.
const (
	DefaultStaticCacheName  = "timezen-static-v1"
	DefaultRuntimeCacheName = "timezen-runtime-v1"
)

// setDefaults registers the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8090")
	v.SetDefault("upstream", "")

	v.SetDefault("backend.origins", []string{"firebaseio.com", "googleapis.com"})
	v.SetDefault("backend.routes", map[string]string{})

	v.SetDefault("cache.static_name", DefaultStaticCacheName)
	v.SetDefault("cache.runtime_name", DefaultRuntimeCacheName)
	v.SetDefault("cache.static_assets", []string{})
	v.SetDefault("cache.offline_page", "")
	v.SetDefault("cache.hot_ttl", 5*time.Minute)
	v.SetDefault("cache.runtime_max_age", 7*24*time.Hour)
	v.SetDefault("cache.janitor_interval", time.Hour)
	v.SetDefault("cache.skip_waiting", false)
	v.SetDefault("cache.install_concurrency", 4)
	v.SetDefault("cache.install_timeout", 30*time.Second)

	v.SetDefault("state.session_ttl", 30*time.Minute)
	v.SetDefault("state.cookie_secret", "")

	v.SetDefault("refresh.interval", 5*time.Minute)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "timezen-gateway.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "info")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
