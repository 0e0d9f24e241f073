// Package cache implements the gateway's named response caches: a persisted
// key→snapshot store per cache name, fronted by a short-lived in-memory hot
// layer. Two named caches exist at any time — one for enumerated static
// assets, one for opportunistically captured runtime/backend responses —
// and a Manager handles their versioned lifecycle cleanup.
package cache

import (
	"context"
	"net/http"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
	"github.com/tphakala/timezen-gateway/internal/datastore/repository"
	"github.com/tphakala/timezen-gateway/internal/errors"
	"github.com/tphakala/timezen-gateway/internal/logger"
)

// ErrNotCacheable is returned by Put for responses that must never be
// stored (anything other than HTTP 200).
var ErrNotCacheable = errors.NewStd("response is not cacheable")

// Cache is a handle to one named cache. Handles are cheap; all entries
// live in the repository, with recently used ones mirrored in the hot layer.
type Cache struct {
	name string
	repo repository.CacheRepository
	hot  *gocache.Cache
	log  logger.Logger
}

// Name returns the version-tagged cache name.
func (c *Cache) Name() string { return c.name }

// Match returns the stored snapshot for key, or false if absent.
func (c *Cache) Match(ctx context.Context, key string) (*Response, bool) {
	if v, ok := c.hot.Get(key); ok {
		if resp, ok := v.(*Response); ok {
			return resp, true
		}
	}

	entry, err := c.repo.Get(ctx, c.name, key)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheEntryNotFound) {
			c.log.Warn("cache read failed",
				logger.String("cache", c.name),
				logger.String("key", key),
				logger.Error(err))
		}
		return nil, false
	}

	resp := &Response{
		StatusCode: entry.StatusCode,
		Header:     decodeHeader(entry.Headers),
		Body:       entry.Body,
		CapturedAt: entry.CapturedAt,
	}
	c.hot.SetDefault(key, resp)
	return resp, true
}

// Put stores a snapshot under key, overwriting any previous entry for the
// same key. Only HTTP 200 snapshots are accepted; everything else returns
// ErrNotCacheable so callers can decide whether that is worth logging.
func (c *Cache) Put(ctx context.Context, key string, resp *Response) error {
	if resp.StatusCode != http.StatusOK {
		return ErrNotCacheable
	}

	headers, err := encodeHeader(resp.Header)
	if err != nil {
		return err
	}

	entry := &entities.CacheEntry{
		CacheName:   c.name,
		RequestKey:  key,
		StatusCode:  resp.StatusCode,
		Headers:     headers,
		Body:        resp.Body,
		ContentType: resp.ContentType(),
		CapturedAt:  resp.CapturedAt,
	}
	if err := c.repo.Put(ctx, entry); err != nil {
		return errors.New(err).
			Component("cache").
			Category(errors.CategoryCacheStore).
			Context("cache_name", c.name).
			Build()
	}
	c.hot.SetDefault(key, resp)
	return nil
}

// Delete removes the entry for key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.hot.Delete(key)
	return c.repo.Delete(ctx, c.name, key)
}

// Keys enumerates the request keys currently stored.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.repo.Keys(ctx, c.name)
}

// Len returns the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int64, error) {
	return c.repo.CountEntries(ctx, c.name)
}
