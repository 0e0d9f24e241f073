package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initSubscriptionRoutes registers the backend resource subscription
// endpoints. Pages subscribe the realtime paths they render so the refresh
// controller keeps warm copies in the runtime cache.
func (c *Controller) initSubscriptionRoutes(g *echo.Group) {
	g.GET("/subscriptions", c.ListSubscriptions)
	g.POST("/subscriptions", c.Subscribe)
	g.DELETE("/subscriptions", c.Unsubscribe)
}

// subscriptionRequest is the POST/DELETE body.
type subscriptionRequest struct {
	URL string `json:"url"`
}

// ListSubscriptions returns the currently subscribed URLs.
func (c *Controller) ListSubscriptions(ctx echo.Context) error {
	urls := c.refresher.Subscriptions()
	return ctx.JSON(http.StatusOK, map[string]any{
		"subscriptions": urls,
		"count":         len(urls),
	})
}

// Subscribe adds a URL to the refresh set. Idempotent.
func (c *Controller) Subscribe(ctx echo.Context) error {
	var req subscriptionRequest
	if err := ctx.Bind(&req); err != nil || req.URL == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	c.refresher.Subscribe(req.URL)
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Unsubscribe removes a URL from the refresh set. Idempotent.
func (c *Controller) Unsubscribe(ctx echo.Context) error {
	var req subscriptionRequest
	if err := ctx.Bind(&req); err != nil || req.URL == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	c.refresher.Unsubscribe(req.URL)
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
