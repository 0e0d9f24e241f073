package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
	"github.com/tphakala/timezen-gateway/internal/errors"
)

// stateRepository implements StateRepository.
type stateRepository struct {
	db *gorm.DB
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(db *gorm.DB) StateRepository {
	return &stateRepository{db: db}
}

// Get returns the durable value for key, or ErrStateEntryNotFound.
func (r *stateRepository) Get(ctx context.Context, key string) (*entities.StateEntry, error) {
	var entry entities.StateEntry
	err := r.db.WithContext(ctx).Where("state_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateEntryNotFound
		}
		return nil, fmt.Errorf("failed to get state entry: %w", err)
	}
	return &entry, nil
}

// Set upserts the durable value for key. Last write wins.
func (r *stateRepository) Set(ctx context.Context, key, value string) error {
	entry := entities.StateEntry{Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to set state entry: %w", err)
	}
	return nil
}

// Delete removes the durable value for key. Missing keys are not an error.
func (r *stateRepository) Delete(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).Where("state_key = ?", key).Delete(&entities.StateEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete state entry: %w", err)
	}
	return nil
}

// Keys returns every durable key, sorted.
func (r *stateRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&entities.StateEntry{}).
		Order("state_key ASC").
		Pluck("state_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}
	return keys, nil
}
