// Package api exposes the gateway's HTTP surface: the catch-all proxy that
// routes app and backend traffic through the fetch interceptor, the control
// endpoints app pages use (lifecycle messages, state store, subscriptions),
// and operational endpoints (health, metrics).
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/interceptor"
	"github.com/tphakala/timezen-gateway/internal/lifecycle"
	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/refresh"
	"github.com/tphakala/timezen-gateway/internal/state"
)

// Controller carries the dependencies of the HTTP handlers.
type Controller struct {
	echo      *echo.Echo
	settings  *conf.Settings
	lifecycle *lifecycle.Controller
	transport *interceptor.Transport
	states    *state.Store
	refresher *refresh.Controller
	cookies   *sessions.CookieStore
	log       logger.Logger

	upstream *url.URL
	// backends is ordered longest prefix first so overlapping route
	// prefixes match deterministically.
	backends []backendRoute
	proxy    *httputil.ReverseProxy
}

// backendRoute maps a gateway path prefix to a backend base URL.
type backendRoute struct {
	prefix string
	target *url.URL
}

// New creates the API controller and registers all routes.
func New(
	settings *conf.Settings,
	lc *lifecycle.Controller,
	transport *interceptor.Transport,
	states *state.Store,
	refresher *refresh.Controller,
	registry *prometheus.Registry,
	log logger.Logger,
) (*Controller, error) {
	upstream, err := url.Parse(settings.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", settings.Upstream, err)
	}

	backends := make([]backendRoute, 0, len(settings.Backend.Routes))
	for prefix, base := range settings.Backend.Routes {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid backend route %q: %w", base, err)
		}
		backends = append(backends, backendRoute{prefix: prefix, target: u})
	}
	sort.Slice(backends, func(i, j int) bool {
		if len(backends[i].prefix) != len(backends[j].prefix) {
			return len(backends[i].prefix) > len(backends[j].prefix)
		}
		return backends[i].prefix < backends[j].prefix
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	c := &Controller{
		echo:      e,
		settings:  settings,
		lifecycle: lc,
		transport: transport,
		states:    states,
		refresher: refresher,
		cookies:   newCookieStore(settings.State.CookieSecret),
		log:       log,
		upstream:  upstream,
		backends:  backends,
	}
	c.proxy = c.newProxy()
	c.initRoutes(registry)
	return c, nil
}

// Echo exposes the underlying echo instance for tests.
func (c *Controller) Echo() *echo.Echo { return c.echo }

// Start serves until the listener fails or Shutdown is called.
func (c *Controller) Start(addr string) error {
	return c.echo.Start(addr)
}

// Shutdown gracefully stops the server and drains pending cache writes.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.echo.Shutdown(ctx)
	c.transport.Drain()
	return err
}

// initRoutes registers the control API and the catch-all proxy.
func (c *Controller) initRoutes(registry *prometheus.Registry) {
	v1 := c.echo.Group("/api/v1")
	v1.GET("/health", c.GetHealth)

	c.initControlRoutes(v1)
	c.initStateRoutes(v1)
	c.initSubscriptionRoutes(v1)

	if registry != nil {
		c.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	// Everything else is proxied through the interceptor.
	c.echo.Any("/*", c.Proxy)
}

// GetHealth reports liveness and the active cache generation.
func (c *Controller) GetHealth(ctx echo.Context) error {
	gen := c.lifecycle.Current()
	body := map[string]any{"status": "ok"}
	if gen != nil {
		body["static_cache"] = gen.StaticName
		body["runtime_cache"] = gen.RuntimeName
	}
	if waiting := c.lifecycle.Waiting(); waiting != nil {
		body["waiting_static_cache"] = waiting.StaticName
	}
	return ctx.JSON(http.StatusOK, body)
}

// Proxy forwards the request to its target origin through the interceptor
// transport.
func (c *Controller) Proxy(ctx echo.Context) error {
	c.proxy.ServeHTTP(ctx.Response(), ctx.Request())
	return nil
}

// newProxy builds the reverse proxy. The director maps gateway paths to
// their target origin: configured backend route prefixes rewrite to the
// backend base URL, everything else goes to the upstream app origin. The
// interceptor transport then classifies by the rewritten host.
func (c *Controller) newProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: c.transport,
		Director: func(req *http.Request) {
			target := c.upstream
			for _, route := range c.backends {
				if strings.HasPrefix(req.URL.Path, route.prefix) {
					target = route.target
					req.URL.Path = "/" + strings.TrimPrefix(req.URL.Path, route.prefix)
					break
				}
			}
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			if target.Path != "" && target.Path != "/" {
				req.URL.Path = singleJoin(target.Path, req.URL.Path)
			}
			req.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			// Only backend-origin requests can surface a transport error;
			// app-class requests always get a synthesized response.
			c.log.Debug("proxy fetch failed",
				logger.String("url", r.URL.String()),
				logger.Error(err))
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("backend unavailable"))
		},
	}
}

func singleJoin(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
