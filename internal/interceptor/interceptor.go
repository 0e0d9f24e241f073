// Package interceptor implements the gateway's fetch routing. Every
// outgoing request passes through the Transport, which decides per request
// how to satisfy it: network-first with cache fallback for app-shell and
// third-party resources, read-through runtime caching for backend-origin
// requests, an offline fallback page for failed HTML navigations, and a
// synthesized 503 for everything else. The Transport is the only component
// with decision logic; the caches it consults are passive storage.
package interceptor

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/timezen-gateway/internal/cache"
	"github.com/tphakala/timezen-gateway/internal/errors"
	"github.com/tphakala/timezen-gateway/internal/lifecycle"
	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/metrics"
)

// cacheWriteTimeout bounds each asynchronous cache write.
const cacheWriteTimeout = 5 * time.Second

// offlineBody is the plain-text body of the synthesized 503 response.
const offlineBody = "Offline - resource not available"

// PayloadInspector validates backend payloads before they enter the cache.
type PayloadInspector interface {
	Inspect(u *url.URL, body []byte)
}

// Transport routes intercepted requests. It implements http.RoundTripper
// so it can sit under any HTTP client or reverse proxy. Concurrent
// requests for different keys proceed fully in parallel; the only shared
// state is the cache storage itself.
type Transport struct {
	inner     http.RoundTripper
	lifecycle *lifecycle.Controller
	origins   []string
	inspector PayloadInspector
	metrics   *metrics.Metrics
	log       logger.Logger

	writes sync.WaitGroup
}

// New creates the interceptor transport. backendOrigins are substrings
// matched against a request's host to classify it as a backend request.
// inner defaults to http.DefaultTransport; inspector and m may be nil.
func New(inner http.RoundTripper, lc *lifecycle.Controller, backendOrigins []string, inspector PayloadInspector, m *metrics.Metrics, log logger.Logger) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		inner:     inner,
		lifecycle: lc,
		origins:   backendOrigins,
		inspector: inspector,
		metrics:   m,
		log:       log,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Non-GET requests pass through untouched.
	if req.Method != http.MethodGet {
		t.metrics.RecordFetch(metrics.ClassApp, metrics.OutcomePassthrough)
		return t.inner.RoundTrip(req)
	}

	start := time.Now()
	if t.isBackend(req.URL.Host) {
		resp, err := t.fetchBackend(req)
		t.metrics.ObserveFetchDuration(metrics.ClassBackend, time.Since(start).Seconds())
		return resp, err
	}
	resp, err := t.fetchApp(req)
	t.metrics.ObserveFetchDuration(metrics.ClassApp, time.Since(start).Seconds())
	return resp, err
}

// isBackend classifies a host by substring match against the configured
// backend origins. This is the sole mechanism partitioning read-through
// backend behavior from app-shell behavior.
func (t *Transport) isBackend(host string) bool {
	for _, origin := range t.origins {
		if origin != "" && strings.Contains(host, origin) {
			return true
		}
	}
	return false
}

// fetchBackend handles backend-origin requests: always try the network
// first; cache successful responses read-through; fall back to the runtime
// cache on any failure. A miss fails the request — backend data never gets
// an offline-page substitute, callers handle missing data themselves.
func (t *Transport) fetchBackend(req *http.Request) (*http.Response, error) {
	key := cache.Key(req)
	runtime := t.lifecycle.RuntimeCache()

	resp, err := t.inner.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusOK {
		t.metrics.RecordFetch(metrics.ClassBackend, metrics.OutcomeNetwork)
		t.captureAsync(req, resp, runtime, "runtime", true)
		return resp, nil
	}

	// Network error or non-200: fall through to the runtime cache.
	if runtime != nil {
		if cached, ok := runtime.Match(req.Context(), key); ok {
			if resp != nil {
				discard(resp)
			}
			t.metrics.RecordFetch(metrics.ClassBackend, metrics.OutcomeCache)
			return cached.HTTPResponse(req), nil
		}
	}

	if err != nil {
		t.metrics.RecordFetch(metrics.ClassBackend, metrics.OutcomeError)
		return nil, err
	}
	// Live non-200 with nothing cached: return it as-is.
	t.metrics.RecordFetch(metrics.ClassBackend, metrics.OutcomeNetwork)
	return resp, nil
}

// fetchApp handles everything that is not backend-origin with a
// network-first strategy. This path never returns an error: when both
// network and cache miss, HTML navigations get the offline fallback page
// and other resources get a synthesized 503.
func (t *Transport) fetchApp(req *http.Request) (*http.Response, error) {
	key := cache.Key(req)

	resp, err := t.inner.RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			tier, dest := t.destination(req.URL)
			t.captureAsync(req, resp, dest, tier, false)
		}
		// Non-200 responses are returned as-is and never cached; a 404
		// is shown, not masked.
		t.metrics.RecordFetch(metrics.ClassApp, metrics.OutcomeNetwork)
		return resp, nil
	}

	// Network failed: consult both caches, static first.
	for _, c := range []*cache.Cache{t.lifecycle.StaticCache(), t.lifecycle.RuntimeCache()} {
		if c == nil {
			continue
		}
		if cached, ok := c.Match(req.Context(), key); ok {
			t.metrics.RecordFetch(metrics.ClassApp, metrics.OutcomeCache)
			return cached.HTTPResponse(req), nil
		}
	}

	if acceptsHTML(req) {
		if page := t.offlinePage(req); page != nil {
			t.metrics.RecordFetch(metrics.ClassApp, metrics.OutcomeOfflinePage)
			return page, nil
		}
	}

	t.metrics.RecordFetch(metrics.ClassApp, metrics.OutcomeUnavailable)
	return unavailableResponse(req), nil
}

// destination picks the cache an app-class response belongs in: manifest
// assets (and CACHE_URLS additions) go to the static cache, everything
// else captured opportunistically goes to the runtime cache.
func (t *Transport) destination(u *url.URL) (string, *cache.Cache) {
	if t.lifecycle.IsStaticAsset(u) {
		return "static", t.lifecycle.StaticCache()
	}
	return "runtime", t.lifecycle.RuntimeCache()
}

// captureAsync snapshots resp and writes it to dest without blocking
// response delivery. Write failures are logged and swallowed — a caching
// side effect must never fail the in-flight response. The snapshot itself
// happens synchronously (the body must be teed before the caller reads
// it); only the store write is deferred.
func (t *Transport) captureAsync(req *http.Request, resp *http.Response, dest *cache.Cache, tier string, inspect bool) {
	if dest == nil {
		return
	}
	snapshot, err := cache.Capture(resp)
	if err != nil {
		t.metrics.RecordCacheWrite(tier, "failed")
		t.log.Warn("failed to snapshot response",
			logger.String("url", req.URL.String()),
			logger.Error(err))
		return
	}

	if inspect && t.inspector != nil {
		t.inspector.Inspect(req.URL, snapshot.Body)
	}

	key := cache.Key(req)
	t.writes.Add(1)
	go func() {
		defer t.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()
		if err := dest.Put(ctx, key, snapshot); err != nil {
			if errors.Is(err, cache.ErrNotCacheable) {
				t.metrics.RecordCacheWrite(tier, "skipped")
				return
			}
			t.metrics.RecordCacheWrite(tier, "failed")
			t.log.Warn("cache write failed",
				logger.String("cache", dest.Name()),
				logger.String("key", key),
				logger.Error(err))
			return
		}
		t.metrics.RecordCacheWrite(tier, "ok")
	}()
}

// offlinePage returns the cached offline fallback document, or nil if it
// was never cached (in which case the caller falls through to the 503).
func (t *Transport) offlinePage(req *http.Request) *http.Response {
	static := t.lifecycle.StaticCache()
	key := t.lifecycle.OfflinePageKey()
	if static == nil || key == "" {
		return nil
	}
	cached, ok := static.Match(req.Context(), key)
	if !ok {
		return nil
	}
	return cached.HTTPResponse(req)
}

// Drain waits for in-flight cache writes, used at shutdown and in tests.
func (t *Transport) Drain() {
	t.writes.Wait()
}

// acceptsHTML reports whether the request is an HTML navigation.
func acceptsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// unavailableResponse synthesizes the terse 503 returned when a non-HTML
// resource misses both network and cache.
func unavailableResponse(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        "503 Service Unavailable",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(offlineBody)),
		ContentLength: int64(len(offlineBody)),
		Request:       req,
	}
}

// discard drains and closes an abandoned response body so the underlying
// connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
