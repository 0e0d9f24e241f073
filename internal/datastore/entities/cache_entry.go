package entities

import "time"

// CacheEntry is a persisted response snapshot. The request key is the
// canonicalized method+URL; KeyHash is its SHA-256 used for indexing so the
// uniqueness constraint stays within index key-length limits on MySQL.
// Only successful (HTTP 200) responses are ever stored.
type CacheEntry struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CacheName  string `gorm:"size:100;not null;uniqueIndex:idx_cache_name_key,priority:1;index" json:"cache_name"`
	KeyHash    string `gorm:"size:64;not null;uniqueIndex:idx_cache_name_key,priority:2" json:"-"`
	RequestKey string `gorm:"type:text;not null" json:"request_key"`
	StatusCode int    `gorm:"not null" json:"status_code"`
	Headers    string `gorm:"type:text" json:"headers"`
	// mediumblob: app bundles and fonts exceed MySQL's 64KB BLOB limit.
	Body        []byte    `gorm:"type:mediumblob" json:"-"`
	ContentType string    `gorm:"size:255" json:"content_type"`
	CapturedAt  time.Time `gorm:"not null;index" json:"captured_at"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}
