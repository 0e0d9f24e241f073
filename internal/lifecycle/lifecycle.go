// Package lifecycle manages cache generations. A generation is the pair of
// version-tagged cache names from the deployment's configuration. Installing
// a generation precaches the static asset manifest; activating it deletes
// every named cache that does not belong to it, so at most two named caches
// exist after activation. A freshly installed generation waits until it is
// explicitly activated (or a SKIP_WAITING control message arrives), except
// for the very first install, which activates immediately because there is
// no previous generation serving requests.
package lifecycle

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/timezen-gateway/internal/cache"
	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/metrics"
)

// Fetcher performs the network fetches used to populate the static cache.
// *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generation is one deployment's pair of named caches.
type Generation struct {
	StaticName  string
	RuntimeName string
}

// InstallResult summarizes one install attempt. Install never fails
// outright on unreachable assets; missing entries simply miss at runtime.
type InstallResult struct {
	Cached int
	Failed int
}

// Controller owns the generation state machine and the set of known static
// asset URLs.
type Controller struct {
	manager  *cache.Manager
	fetcher  Fetcher
	upstream *url.URL
	metrics  *metrics.Metrics
	log      logger.Logger

	skipWaiting        bool
	installConcurrency int
	installTimeout     time.Duration
	offlineKey         string

	active atomic.Pointer[Generation]

	mu      sync.Mutex
	waiting *Generation
	// static holds every URL (absolute form and path form) that belongs in
	// the static cache: the install manifest plus CACHE_URLS additions.
	static map[string]struct{}
}

// NewController creates a lifecycle controller. upstream must be the parsed
// app origin base URL; relative manifest entries resolve against it. m may
// be nil.
func NewController(manager *cache.Manager, fetcher Fetcher, upstream *url.URL, settings conf.CacheSettings, m *metrics.Metrics, log logger.Logger) *Controller {
	c := &Controller{
		manager:            manager,
		fetcher:            fetcher,
		upstream:           upstream,
		metrics:            m,
		log:                log,
		skipWaiting:        settings.SkipWaiting,
		installConcurrency: settings.InstallConcurrency,
		installTimeout:     settings.InstallTimeout.Std(),
		static:             make(map[string]struct{}),
	}
	if c.installConcurrency <= 0 {
		c.installConcurrency = 4
	}
	// Config is immutable, so the offline page's cache key is fixed for
	// the controller's lifetime.
	if settings.OfflinePage != "" {
		if target, err := c.resolve(settings.OfflinePage); err == nil {
			c.offlineKey = http.MethodGet + " " + target.String()
		} else {
			log.Warn("unresolvable offline page",
				logger.String("offline_page", settings.OfflinePage),
				logger.Error(err))
		}
	}
	return c
}

// Current returns the active generation, or nil before first activation.
func (c *Controller) Current() *Generation {
	return c.active.Load()
}

// Waiting returns the installed-but-not-activated generation, or nil.
func (c *Controller) Waiting() *Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Install populates the static cache of a new generation from the asset
// manifest. Individual fetch failures are logged and skipped; install
// completes regardless. The generation then waits unless skip-waiting is
// configured or no generation is active yet.
func (c *Controller) Install(ctx context.Context, gen Generation, manifest []string) (InstallResult, error) {
	manifest = normalizeManifest(manifest)
	c.log.Info("installing cache generation",
		logger.String("static", gen.StaticName),
		logger.String("runtime", gen.RuntimeName),
		logger.Int("manifest_size", len(manifest)))

	result := c.precache(ctx, gen.StaticName, manifest)

	c.mu.Lock()
	c.waiting = &gen
	c.mu.Unlock()

	c.log.Info("install finished",
		logger.String("static", gen.StaticName),
		logger.Int("cached", result.Cached),
		logger.Int("failed", result.Failed))

	if c.skipWaiting || c.Current() == nil {
		if err := c.Activate(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Activate promotes the waiting generation: every named cache not matching
// its static or runtime name is deleted, and the interceptor starts serving
// from the new generation immediately (callers consult Current on every
// request, so no restart is needed). Activating with nothing waiting is a
// no-op.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	gen := c.waiting
	c.waiting = nil
	c.mu.Unlock()
	if gen == nil {
		return nil
	}

	names, err := c.manager.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == gen.StaticName || name == gen.RuntimeName {
			continue
		}
		deleted, err := c.manager.Delete(ctx, name)
		if err != nil {
			c.log.Error("failed to delete stale cache",
				logger.String("cache", name),
				logger.Error(err))
			continue
		}
		c.log.Info("deleted stale cache",
			logger.String("cache", name),
			logger.Int64("entries", deleted))
	}

	c.active.Store(gen)
	c.log.Info("cache generation activated",
		logger.String("static", gen.StaticName),
		logger.String("runtime", gen.RuntimeName))
	return nil
}

// precache fetches manifest entries concurrently and stores successful
// responses in the named static cache.
func (c *Controller) precache(ctx context.Context, cacheName string, manifest []string) InstallResult {
	static := c.manager.Open(cacheName)

	var cached, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.installConcurrency)

	for _, raw := range manifest {
		raw := raw
		g.Go(func() error {
			if err := c.fetchInto(gctx, static, raw); err != nil {
				failed.Add(1)
				c.metrics.RecordPrecache("failed")
				c.log.Warn("failed to precache asset",
					logger.String("asset", raw),
					logger.Error(err))
			} else {
				cached.Add(1)
				c.metrics.RecordPrecache("ok")
			}
			// Install must not abort on individual asset failures.
			return nil
		})
	}
	_ = g.Wait()

	return InstallResult{Cached: int(cached.Load()), Failed: int(failed.Load())}
}

// fetchInto fetches one manifest entry and stores it. Non-200 responses
// count as failures so stale placeholders never enter the static cache.
func (c *Controller) fetchInto(ctx context.Context, static *cache.Cache, raw string) error {
	target, err := c.resolve(raw)
	if err != nil {
		return err
	}

	fetchCtx := ctx
	if c.installTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.installTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.fetcher.Do(req)
	if err != nil {
		return err
	}
	snapshot, err := cache.Capture(resp)
	if err != nil {
		return err
	}
	if err := static.Put(ctx, cache.Key(req), snapshot); err != nil {
		return err
	}

	c.registerStatic(raw, target)
	return nil
}

// resolve turns a manifest entry into an absolute URL. Entries may be
// absolute (third-party fonts, icon stylesheets) or paths relative to the
// upstream app origin.
func (c *Controller) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.IsAbs() {
		return u, nil
	}
	return c.upstream.ResolveReference(u), nil
}

// registerStatic records both the raw manifest form and the resolved
// absolute URL so the interceptor can route either representation to the
// static cache.
func (c *Controller) registerStatic(raw string, resolved *url.URL) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.static[raw] = struct{}{}
	c.static[resolved.String()] = struct{}{}
	if resolved.Path != "" {
		c.static[resolved.Path] = struct{}{}
	}
}

// IsStaticAsset reports whether the URL belongs to the static cache. Both
// absolute URLs and bare paths match.
func (c *Controller) IsStaticAsset(u *url.URL) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.static[u.String()]; ok {
		return true
	}
	_, ok := c.static[u.Path]
	return ok
}

// OfflinePageKey returns the cache key of the offline fallback page, or ""
// when none is configured.
func (c *Controller) OfflinePageKey() string {
	return c.offlineKey
}

// StaticCache returns the active generation's static cache, or nil before
// first activation.
func (c *Controller) StaticCache() *cache.Cache {
	gen := c.Current()
	if gen == nil {
		return nil
	}
	return c.manager.Open(gen.StaticName)
}

// RuntimeCache returns the active generation's runtime cache, or nil before
// first activation.
func (c *Controller) RuntimeCache() *cache.Cache {
	gen := c.Current()
	if gen == nil {
		return nil
	}
	return c.manager.Open(gen.RuntimeName)
}

// CacheNames enumerates every named cache with stored entries.
func (c *Controller) CacheNames(ctx context.Context) ([]string, error) {
	return c.manager.Names(ctx)
}

// CacheLen returns the number of entries in the named cache.
func (c *Controller) CacheLen(ctx context.Context, name string) (int64, error) {
	return c.manager.Open(name).Len(ctx)
}

// PrecacheURLs opportunistically warms the active static cache with
// additional URLs, e.g. user-division-specific pages requested by the app
// after login. Failures are logged per URL, never fatal.
func (c *Controller) PrecacheURLs(ctx context.Context, urls []string) InstallResult {
	gen := c.Current()
	if gen == nil {
		return InstallResult{Failed: len(urls)}
	}
	return c.precache(ctx, gen.StaticName, urls)
}

// normalizeManifest trims blank entries so a sloppy config cannot poison
// the static URL set.
func normalizeManifest(manifest []string) []string {
	out := make([]string, 0, len(manifest))
	for _, m := range manifest {
		if s := strings.TrimSpace(m); s != "" {
			out = append(out, s)
		}
	}
	return out
}
