package repository

import (
	"context"

	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
)

// ErrStateEntryNotFound is returned when no durable value exists for a key.
var ErrStateEntryNotFound = notFoundError("state entry not found")

// StateRepository persists durable-scope key/value state.
type StateRepository interface {
	Get(ctx context.Context, key string) (*entities.StateEntry, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
