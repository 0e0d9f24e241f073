package lifecycle

import (
	"context"
	"fmt"

	"github.com/tphakala/timezen-gateway/internal/logger"
)

// Control message types accepted from app pages. These mirror the message
// protocol the frontend already speaks.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheURLs   = "CACHE_URLS"
)

// Message is a control message from a page.
type Message struct {
	Type string   `json:"type"`
	URLs []string `json:"urls,omitempty"`
}

// HandleMessage processes a control message. SKIP_WAITING activates a
// waiting generation immediately; CACHE_URLS pre-warms the static cache
// with additional URLs.
func (c *Controller) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		return c.Activate(ctx)
	case MessageCacheURLs:
		result := c.PrecacheURLs(ctx, msg.URLs)
		if result.Failed > 0 {
			c.log.Warn("some pre-warm URLs failed to cache",
				logger.Int("failed", result.Failed),
				logger.Int("cached", result.Cached))
		}
		return nil
	default:
		return fmt.Errorf("unknown control message type %q", msg.Type)
	}
}
