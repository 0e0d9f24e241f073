package entities

import "time"

// StateEntry is a durable-scope key/value pair. Values are stored as
// strings; structured values are JSON-encoded by the caller.
type StateEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:state_key;size:255;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (StateEntry) TableName() string {
	return "state_entries"
}
