// Package state implements the dual-tier key/value store app pages use for
// user session data, cached reference data and cross-page hand-off values.
// Session scope is in-memory and expires with the browsing session; durable
// scope persists until explicitly cleared. Reads try session scope first
// and fall back to durable scope — that ordering is load-bearing: a viewer
// page opened in a new tab has an empty session scope and must still find
// the hand-off values in durable scope.
package state

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/datastore/repository"
	"github.com/tphakala/timezen-gateway/internal/errors"
	"github.com/tphakala/timezen-gateway/internal/logger"
)

// Scope selects where a write lands.
type Scope string

const (
	// ScopeSession stores the value in the caller's session only.
	ScopeSession Scope = "session"
	// ScopeDurable stores the value durably.
	ScopeDurable Scope = "durable"
	// ScopeHandoff mirrors a session write into durable scope in one call.
	// Used for values a page stashes before opening a viewer in a new
	// browsing context, which does not share session scope.
	ScopeHandoff Scope = "handoff"
)

// ErrUnknownScope is returned for scope values outside the contract.
var ErrUnknownScope = errors.NewStd("unknown state scope")

// Store is the dual-scope key/value store. Values are strings; structured
// values are JSON-encoded by the caller. Last write wins in both scopes.
type Store struct {
	sessions *gocache.Cache
	repo     repository.StateRepository
	log      logger.Logger
}

// NewStore creates a state store. Session entries expire after the
// configured idle TTL, approximating the end of a browsing session.
func NewStore(repo repository.StateRepository, settings conf.StateSettings, log logger.Logger) *Store {
	ttl := settings.SessionTTL.Std()
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Store{
		sessions: gocache.New(ttl, ttl),
		repo:     repo,
		log:      log,
	}
}

// sessionKey namespaces a key by session so tabs of different users never
// observe each other's session-scope values.
func sessionKey(sessionID, key string) string {
	return sessionID + "\x00" + key
}

// Write stores value under key in the requested scope. A session-scope
// write with no session falls through to durable scope so callers without
// a session cookie still function.
func (s *Store) Write(ctx context.Context, sessionID, key, value string, scope Scope) error {
	switch scope {
	case ScopeSession:
		if sessionID == "" {
			return s.writeDurable(ctx, key, value)
		}
		s.sessions.SetDefault(sessionKey(sessionID, key), value)
		return nil
	case ScopeDurable:
		return s.writeDurable(ctx, key, value)
	case ScopeHandoff:
		if sessionID != "" {
			s.sessions.SetDefault(sessionKey(sessionID, key), value)
		}
		return s.writeDurable(ctx, key, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

func (s *Store) writeDurable(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, value); err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("key", key).
			Build()
	}
	return nil
}

// Read returns the value for key, trying session scope first and falling
// back to durable scope. The second return is false when the key is absent
// in both scopes.
func (s *Store) Read(ctx context.Context, sessionID, key string) (string, bool) {
	if sessionID != "" {
		if v, ok := s.sessions.Get(sessionKey(sessionID, key)); ok {
			if str, ok := v.(string); ok {
				return str, true
			}
		}
	}

	entry, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrStateEntryNotFound) {
			s.log.Warn("durable state read failed",
				logger.String("key", key),
				logger.Error(err))
		}
		return "", false
	}
	return entry.Value, true
}

// Clear removes key from both scopes.
func (s *Store) Clear(ctx context.Context, sessionID, key string) error {
	if sessionID != "" {
		s.sessions.Delete(sessionKey(sessionID, key))
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return errors.New(err).
			Component("state").
			Category(errors.CategoryState).
			Context("key", key).
			Build()
	}
	return nil
}

// ParseScope validates a scope string from the API surface.
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeSession, ScopeDurable, ScopeHandoff:
		return Scope(raw), nil
	case "":
		return ScopeDurable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, raw)
	}
}
