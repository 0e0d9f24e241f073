package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/timezen-gateway/internal/datastore/repository"
	"github.com/tphakala/timezen-gateway/internal/logger"
)

const (
	// janitorTimeout is the context deadline for one pruning pass.
	janitorTimeout = 10 * time.Second
	// hotCleanupInterval is how often the hot layer evicts expired entries.
	hotCleanupInterval = 10 * time.Minute
)

// Manager opens, enumerates and deletes named caches. It is safe for
// concurrent use from any number of request goroutines.
type Manager struct {
	repo   repository.CacheRepository
	log    logger.Logger
	hotTTL time.Duration

	mu   sync.Mutex
	open map[string]*Cache

	janitorStop chan struct{}
}

// NewManager creates a cache manager. hotTTL bounds how long entries stay
// in the per-cache in-memory hot layer.
func NewManager(repo repository.CacheRepository, hotTTL time.Duration, log logger.Logger) *Manager {
	return &Manager{
		repo:   repo,
		log:    log,
		hotTTL: hotTTL,
		open:   make(map[string]*Cache),
	}
}

// Open returns the handle for the named cache, creating it lazily. The
// underlying storage materializes on first write.
func (m *Manager) Open(name string) *Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.open[name]; ok {
		return c
	}
	c := &Cache{
		name: name,
		repo: m.repo,
		hot:  gocache.New(m.hotTTL, hotCleanupInterval),
		log:  m.log,
	}
	m.open[name] = c
	return c
}

// Names enumerates every named cache with stored entries.
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	return m.repo.CacheNames(ctx)
}

// Delete drops the named cache entirely: all persisted entries plus the
// hot layer of any open handle. Returns the number of entries removed.
func (m *Manager) Delete(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	if c, ok := m.open[name]; ok {
		c.hot.Flush()
		delete(m.open, name)
	}
	m.mu.Unlock()
	return m.repo.DeleteCache(ctx, name)
}

// StartJanitor starts a background goroutine that periodically prunes
// entries older than maxAge from the named cache. A zero maxAge disables
// pruning.
func (m *Manager) StartJanitor(cacheName string, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		return
	}
	// Stop any previous janitor before starting a new one.
	m.stopJanitor()
	m.mu.Lock()
	m.janitorStop = make(chan struct{})
	stopCh := m.janitorStop
	m.mu.Unlock()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-maxAge)
				pruneCtx, cancel := context.WithTimeout(context.Background(), janitorTimeout)
				deleted, err := m.repo.DeleteCapturedBefore(pruneCtx, cacheName, cutoff)
				cancel()
				if err != nil {
					m.log.Error("cache pruning failed",
						logger.String("cache", cacheName),
						logger.Error(err))
				} else if deleted > 0 {
					m.log.Info("cache pruning completed",
						logger.String("cache", cacheName),
						logger.Int64("deleted", deleted))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// stopJanitor signals the janitor goroutine to exit. The nil-check-then-close
// happens under the mutex to prevent double-close panics when Stop and
// StartJanitor race.
func (m *Manager) stopJanitor() {
	m.mu.Lock()
	ch := m.janitorStop
	m.janitorStop = nil
	m.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down background goroutines.
func (m *Manager) Stop() {
	m.stopJanitor()
}
