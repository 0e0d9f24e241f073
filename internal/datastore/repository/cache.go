package repository

import (
	"context"
	"time"

	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
)

// ErrCacheEntryNotFound is returned when no entry exists for a key.
var ErrCacheEntryNotFound = notFoundError("cache entry not found")

// CacheRepository persists response snapshots grouped into named caches.
type CacheRepository interface {
	// Entry operations
	Get(ctx context.Context, cacheName, requestKey string) (*entities.CacheEntry, error)
	Put(ctx context.Context, entry *entities.CacheEntry) error
	Delete(ctx context.Context, cacheName, requestKey string) error

	// Named-cache operations
	CacheNames(ctx context.Context) ([]string, error)
	Keys(ctx context.Context, cacheName string) ([]string, error)
	CountEntries(ctx context.Context, cacheName string) (int64, error)
	DeleteCache(ctx context.Context, cacheName string) (int64, error)
	DeleteCapturedBefore(ctx context.Context, cacheName string, before time.Time) (int64, error)
}

// notFoundError is a sentinel error type for missing rows.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }
