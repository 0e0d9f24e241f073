package errors

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// telemetryEnabled gates Sentry capture. Off by default; the gateway only
// reports errors when the operator explicitly opts in via configuration.
var telemetryEnabled atomic.Bool

// EnableTelemetry initializes Sentry capture for built errors.
func EnableTelemetry(dsn, release string) error {
	if dsn == "" {
		return NewStd("telemetry requires a DSN")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return err
	}
	telemetryEnabled.Store(true)
	return nil
}

// DisableTelemetry stops capture and flushes pending events.
func DisableTelemetry() {
	if telemetryEnabled.Swap(false) {
		sentry.Flush(2 * time.Second)
	}
}

// capture reports an enhanced error to Sentry when telemetry is enabled.
// Capture failures are ignored; error reporting must never become a new
// error source for callers.
func capture(e *EnhancedError) {
	if !telemetryEnabled.Load() || e == nil || e.Err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", e.component)
		scope.SetTag("category", string(e.category))
		for k, v := range e.context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(e.Err)
	})
}
