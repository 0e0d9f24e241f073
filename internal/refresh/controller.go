// Package refresh keeps cached backend resources warm. Pages subscribe the
// backend URLs they depend on (timetable, materials, notices); a single
// ticker loop re-fetches every subscription through the interceptor so the
// runtime cache always holds a recent snapshot for offline fallback.
// Subscription state lives in one controller with idempotent Subscribe and
// Unsubscribe, not in per-page module flags.
package refresh

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/timezen-gateway/internal/logger"
)

// refreshTimeout bounds each subscription fetch.
const refreshTimeout = 15 * time.Second

// Controller owns the subscription set and the refresh loop.
type Controller struct {
	client   *http.Client
	interval time.Duration
	log      logger.Logger

	mu   sync.Mutex
	subs map[string]struct{}
	stop chan struct{}
}

// NewController creates a refresh controller. client must route through
// the interceptor transport so successful fetches land in the runtime
// cache as a side effect.
func NewController(client *http.Client, interval time.Duration, log logger.Logger) *Controller {
	return &Controller{
		client:   client,
		interval: interval,
		log:      log,
		subs:     make(map[string]struct{}),
	}
}

// Subscribe registers a URL for periodic refresh. Subscribing an already
// subscribed URL is a no-op.
func (c *Controller) Subscribe(url string) {
	if url == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[url] = struct{}{}
}

// Unsubscribe removes a URL. Unsubscribing an unknown URL is a no-op.
func (c *Controller) Unsubscribe(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, url)
}

// Subscriptions returns the currently subscribed URLs.
func (c *Controller) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, 0, len(c.subs))
	for u := range c.subs {
		urls = append(urls, u)
	}
	return urls
}

// Start launches the refresh loop. Starting an already running controller
// restarts its ticker. A non-positive interval disables refreshing.
func (c *Controller) Start() {
	if c.interval <= 0 {
		return
	}
	c.stopLoop()
	c.mu.Lock()
	c.stop = make(chan struct{})
	stopCh := c.stop
	c.mu.Unlock()
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.refreshAll()
			case <-stopCh:
				return
			}
		}
	}()
}

// stopLoop signals the loop goroutine to exit; the nil-check-then-close is
// done under the mutex to prevent double-close when Start and Stop race.
func (c *Controller) stopLoop() {
	c.mu.Lock()
	ch := c.stop
	c.stop = nil
	c.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down the refresh loop.
func (c *Controller) Stop() {
	c.stopLoop()
}

// refreshAll fetches every subscription once. Failures are logged and
// skipped; the cached copy from the previous round remains authoritative.
func (c *Controller) refreshAll() {
	for _, u := range c.Subscriptions() {
		if err := c.refreshOne(u); err != nil {
			c.log.Debug("subscription refresh failed",
				logger.String("url", u),
				logger.Error(err))
		}
	}
}

func (c *Controller) refreshOne(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	// The interceptor already captured the body for caching; drain the
	// remainder so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
