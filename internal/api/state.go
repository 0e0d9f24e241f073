package api

import (
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/state"
)

const (
	sessionCookieName = "timezen_session"
	sessionIDKey      = "id"
	// sessionIDHeader lets non-browser callers (and the viewer pages'
	// fetch wrapper) carry an explicit session identity.
	sessionIDHeader = "X-Session-ID"
)

// initStateRoutes registers the dual-scope key/value endpoints.
func (c *Controller) initStateRoutes(g *echo.Group) {
	g.GET("/state/:key", c.GetState)
	g.PUT("/state/:key", c.PutState)
	g.DELETE("/state/:key", c.DeleteState)
}

// stateWriteRequest is the PUT body.
type stateWriteRequest struct {
	Value string `json:"value"`
	Scope string `json:"scope,omitempty"`
}

// GetState reads a key, session scope first with durable fallback. Returns
// 404 when the key is absent in both scopes; callers treat that as "value
// not set", e.g. a viewer page showing its explicit error state.
func (c *Controller) GetState(ctx echo.Context) error {
	key := ctx.Param("key")
	value, ok := c.states.Read(ctx.Request().Context(), c.sessionID(ctx), key)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "key not found"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"key": key, "value": value})
}

// PutState writes a key into the requested scope ("session", "durable" or
// "handoff"; default durable).
func (c *Controller) PutState(ctx echo.Context) error {
	key := ctx.Param("key")
	var req stateWriteRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid state payload"})
	}

	scope, err := state.ParseScope(req.Scope)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := c.states.Write(ctx.Request().Context(), c.sessionID(ctx), key, req.Value, scope); err != nil {
		c.log.Error("state write failed",
			logger.String("key", key),
			logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "state write failed"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteState removes a key from both scopes.
func (c *Controller) DeleteState(ctx echo.Context) error {
	key := ctx.Param("key")
	if err := c.states.Clear(ctx.Request().Context(), c.sessionID(ctx), key); err != nil {
		c.log.Error("state clear failed",
			logger.String("key", key),
			logger.Error(err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "state clear failed"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// sessionID resolves the caller's session identity: an explicit header
// wins, otherwise a session cookie is read or issued. An empty return
// means durable-only semantics.
func (c *Controller) sessionID(ctx echo.Context) string {
	if id := ctx.Request().Header.Get(sessionIDHeader); id != "" {
		return id
	}

	sess, err := c.cookies.Get(ctx.Request(), sessionCookieName)
	if err != nil {
		// A corrupt or re-keyed cookie: issue a fresh session below.
		sess, _ = c.cookies.New(ctx.Request(), sessionCookieName)
	}
	if sess == nil {
		return ""
	}
	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id
	}

	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(ctx.Request(), ctx.Response()); err != nil {
		c.log.Debug("failed to save session cookie", logger.Error(err))
	}
	return id
}

// newCookieStore builds the session cookie store. When no secret is
// configured a random per-start key is used; sessions then reset on
// restart, which matches session-scope semantics anyway.
func newCookieStore(secret string) *sessions.CookieStore {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	} else {
		key = []byte(base64.StdEncoding.EncodeToString([]byte(uuid.NewString())))
	}
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
