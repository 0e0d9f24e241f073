package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
	"github.com/tphakala/timezen-gateway/internal/errors"
)

// cacheRepository implements CacheRepository.
type cacheRepository struct {
	db *gorm.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *gorm.DB) CacheRepository {
	return &cacheRepository{db: db}
}

// HashKey returns the hex SHA-256 of a request key, used for indexed lookups.
func HashKey(requestKey string) string {
	sum := sha256.Sum256([]byte(requestKey))
	return hex.EncodeToString(sum[:])
}

// Get returns the entry for the key in the named cache.
// Returns ErrCacheEntryNotFound if no entry exists.
func (r *cacheRepository) Get(ctx context.Context, cacheName, requestKey string) (*entities.CacheEntry, error) {
	var entry entities.CacheEntry
	err := r.db.WithContext(ctx).
		Where("cache_name = ? AND key_hash = ?", cacheName, HashKey(requestKey)).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheEntryNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// Put upserts the entry keyed by (cache_name, key_hash). A later successful
// capture for the same key overwrites the previous snapshot; concurrent
// writers race with last-write-wins semantics.
func (r *cacheRepository) Put(ctx context.Context, entry *entities.CacheEntry) error {
	if entry.KeyHash == "" {
		entry.KeyHash = HashKey(entry.RequestKey)
	}
	if entry.CapturedAt.IsZero() {
		entry.CapturedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_name"}, {Name: "key_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"request_key", "status_code", "headers", "body", "content_type", "captured_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Delete removes a single entry. Deleting a missing entry is not an error.
func (r *cacheRepository) Delete(ctx context.Context, cacheName, requestKey string) error {
	err := r.db.WithContext(ctx).
		Where("cache_name = ? AND key_hash = ?", cacheName, HashKey(requestKey)).
		Delete(&entities.CacheEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// CacheNames returns the distinct named caches currently holding entries.
func (r *cacheRepository) CacheNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&entities.CacheEntry{}).
		Distinct("cache_name").
		Order("cache_name ASC").
		Pluck("cache_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache names: %w", err)
	}
	return names, nil
}

// Keys returns every request key stored in the named cache.
func (r *cacheRepository) Keys(ctx context.Context, cacheName string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&entities.CacheEntry{}).
		Where("cache_name = ?", cacheName).
		Order("request_key ASC").
		Pluck("request_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

// CountEntries returns the number of entries in the named cache.
func (r *cacheRepository) CountEntries(ctx context.Context, cacheName string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.CacheEntry{}).
		Where("cache_name = ?", cacheName).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}

// DeleteCache drops every entry in the named cache and returns how many
// were removed.
func (r *cacheRepository) DeleteCache(ctx context.Context, cacheName string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("cache_name = ?", cacheName).
		Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete cache %s: %w", cacheName, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteCapturedBefore prunes entries captured before the cutoff.
func (r *cacheRepository) DeleteCapturedBefore(ctx context.Context, cacheName string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("cache_name = ? AND captured_at < ?", cacheName, before).
		Delete(&entities.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune cache %s: %w", cacheName, result.Error)
	}
	return result.RowsAffected, nil
}
