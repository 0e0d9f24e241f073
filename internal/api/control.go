package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/timezen-gateway/internal/lifecycle"
	"github.com/tphakala/timezen-gateway/internal/logger"
)

// initControlRoutes registers the lifecycle control endpoints.
func (c *Controller) initControlRoutes(g *echo.Group) {
	g.POST("/control/message", c.PostControlMessage)
	g.GET("/caches", c.ListCaches)
}

// PostControlMessage accepts the control messages app pages send:
// {"type":"SKIP_WAITING"} and {"type":"CACHE_URLS","urls":[...]}.
func (c *Controller) PostControlMessage(ctx echo.Context) error {
	var msg lifecycle.Message
	if err := ctx.Bind(&msg); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid control message"})
	}

	if err := c.lifecycle.HandleMessage(ctx.Request().Context(), msg); err != nil {
		c.log.Warn("control message failed",
			logger.String("type", msg.Type),
			logger.Error(err))
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListCaches enumerates the named caches and their entry counts.
func (c *Controller) ListCaches(ctx echo.Context) error {
	names, err := c.lifecycle.CacheNames(ctx.Request().Context())
	if err != nil {
		c.log.Error("failed to list caches", logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list caches"})
	}

	caches := make([]map[string]any, 0, len(names))
	for _, name := range names {
		entry := map[string]any{"name": name}
		if count, err := c.lifecycle.CacheLen(ctx.Request().Context(), name); err == nil {
			entry["entries"] = count
		}
		caches = append(caches, entry)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"caches": caches,
		"count":  len(caches),
	})
}
