package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/timezen-gateway/internal/cache"
	"github.com/tphakala/timezen-gateway/internal/conf"
	"github.com/tphakala/timezen-gateway/internal/datastore/entities"
	"github.com/tphakala/timezen-gateway/internal/datastore/repository"
	"github.com/tphakala/timezen-gateway/internal/interceptor"
	"github.com/tphakala/timezen-gateway/internal/lifecycle"
	"github.com/tphakala/timezen-gateway/internal/logger"
	"github.com/tphakala/timezen-gateway/internal/metrics"
	"github.com/tphakala/timezen-gateway/internal/records"
	"github.com/tphakala/timezen-gateway/internal/refresh"
	"github.com/tphakala/timezen-gateway/internal/state"
)

// memCacheRepo is an in-memory CacheRepository for API tests.
type memCacheRepo struct {
	mu      sync.Mutex
	entries map[string]map[string]*entities.CacheEntry
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: make(map[string]map[string]*entities.CacheEntry)}
}

func (m *memCacheRepo) Get(_ context.Context, cacheName, requestKey string) (*entities.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[cacheName][requestKey]; ok {
		return e, nil
	}
	return nil, repository.ErrCacheEntryNotFound
}

func (m *memCacheRepo) Put(_ context.Context, entry *entities.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[entry.CacheName] == nil {
		m.entries[entry.CacheName] = make(map[string]*entities.CacheEntry)
	}
	m.entries[entry.CacheName][entry.RequestKey] = entry
	return nil
}

func (m *memCacheRepo) Delete(_ context.Context, cacheName, requestKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[cacheName], requestKey)
	return nil
}

func (m *memCacheRepo) CacheNames(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name, keys := range m.entries {
		if len(keys) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *memCacheRepo) Keys(_ context.Context, cacheName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries[cacheName]))
	for k := range m.entries[cacheName] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memCacheRepo) CountEntries(_ context.Context, cacheName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries[cacheName])), nil
}

func (m *memCacheRepo) DeleteCache(_ context.Context, cacheName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.entries[cacheName]))
	delete(m.entries, cacheName)
	return n, nil
}

func (m *memCacheRepo) DeleteCapturedBefore(_ context.Context, cacheName string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries[cacheName] {
		if e.CapturedAt.Before(before) {
			delete(m.entries[cacheName], k)
			n++
		}
	}
	return n, nil
}

// memStateRepo is an in-memory StateRepository for API tests.
type memStateRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{values: make(map[string]string)}
}

func (m *memStateRepo) Get(_ context.Context, key string) (*entities.StateEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return &entities.StateEntry{Key: key, Value: v}, nil
	}
	return nil, repository.ErrStateEntryNotFound
}

func (m *memStateRepo) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStateRepo) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memStateRepo) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys, nil
}

type fixture struct {
	controller *Controller
	transport  *interceptor.Transport
	lc         *lifecycle.Controller
	refresher  *refresh.Controller
	network    *httpmock.MockTransport
}

// newFixture wires the full gateway stack over a mock network with an
// installed and activated v1 generation.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRoutes(t, map[string]string{
		"/sync/": "https://demo-default-rtdb.firebaseio.com",
	})
}

// newFixtureWithRoutes is newFixture with the backend route table supplied
// by the test.
func newFixtureWithRoutes(t *testing.T, routes map[string]string) *fixture {
	t.Helper()

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)

	settings := &conf.Settings{
		Upstream: "https://app.example.edu",
		Backend: conf.BackendSettings{
			Origins: []string{"firebaseio.com"},
			Routes:  routes,
		},
		Cache: conf.CacheSettings{
			StaticName:         "timezen-static-v1",
			RuntimeName:        "timezen-runtime-v1",
			StaticAssets:       []string{"/index.html", "/offline.html"},
			OfflinePage:        "/offline.html",
			InstallConcurrency: 2,
			InstallTimeout:     conf.Duration(5 * time.Second),
		},
		State: conf.StateSettings{SessionTTL: conf.Duration(30 * time.Minute)},
	}

	network := httpmock.NewMockTransport()
	network.RegisterResponder(http.MethodGet, "https://app.example.edu/index.html",
		httpmock.NewStringResponder(http.StatusOK, "<html>home</html>"))
	network.RegisterResponder(http.MethodGet, "https://app.example.edu/offline.html",
		httpmock.NewStringResponder(http.StatusOK, "<html>you are offline</html>"))

	manager := cache.NewManager(newMemCacheRepo(), time.Minute, log)
	upstream, err := url.Parse(settings.Upstream)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	lc := lifecycle.NewController(manager, &http.Client{Transport: network}, upstream, settings.Cache, m, log)
	_, err = lc.Install(context.Background(),
		lifecycle.Generation{StaticName: settings.Cache.StaticName, RuntimeName: settings.Cache.RuntimeName},
		settings.Cache.StaticAssets)
	require.NoError(t, err)
	transport := interceptor.New(network, lc, settings.Backend.Origins, records.NewInspector(log), m, log)
	states := state.NewStore(newMemStateRepo(), settings.State, log)
	refresher := refresh.NewController(&http.Client{Transport: transport}, 0, log)

	controller, err := New(settings, lc, transport, states, refresher, registry, log)
	require.NoError(t, err)

	return &fixture{
		controller: controller,
		transport:  transport,
		lc:         lc,
		refresher:  refresher,
		network:    network,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.controller.Echo().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestGetHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), "timezen-static-v1")
	assert.Contains(t, rec.Body.String(), "timezen-runtime-v1")
}

func TestStateRoundtrip_Durable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(jsonRequest(http.MethodPut, "/api/v1/state/division", `{"value":"cs-3"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/state/division", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":"cs-3"`)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/state/division", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/state/division", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestState_SessionScopeViaHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req := jsonRequest(http.MethodPut, "/api/v1/state/draft", `{"value":"my question","scope":"session"}`)
	req.Header.Set("X-Session-ID", "tab-a")
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	// The owning session sees it.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/draft", nil)
	req.Header.Set("X-Session-ID", "tab-a")
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "my question")

	// A different session does not.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/draft", nil)
	req.Header.Set("X-Session-ID", "tab-b")
	assert.Equal(t, http.StatusNotFound, f.do(req).Code)
}

func TestState_HandoffVisibleToOtherSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	req := jsonRequest(http.MethodPut, "/api/v1/state/viewer-material", `{"value":"unit1.pdf","scope":"handoff"}`)
	req.Header.Set("X-Session-ID", "tab-a")
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	// A viewer opened in a new browsing context carries a fresh session and
	// still finds the hand-off value.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/state/viewer-material", nil)
	req.Header.Set("X-Session-ID", "fresh-tab")
	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unit1.pdf")
}

func TestState_InvalidScope(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(jsonRequest(http.MethodPut, "/api/v1/state/k", `{"value":"v","scope":"galactic"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestState_CookieSessionIssued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// First session-scope write without a header gets a session cookie.
	rec := f.do(jsonRequest(http.MethodPut, "/api/v1/state/draft", `{"value":"hello","scope":"session"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "timezen_session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	// Presenting the cookie reads the same session scope back.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state/draft", nil)
	req.AddCookie(sessionCookie)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")

	// Without the cookie the session scope is invisible.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/state/draft", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostControlMessage_SkipWaiting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Install a second generation; it waits behind v1.
	f.network.RegisterResponder(http.MethodGet, "https://app.example.edu/index.html",
		httpmock.NewStringResponder(http.StatusOK, "<html>v2 home</html>"))
	_, err := f.lc.Install(context.Background(),
		lifecycle.Generation{StaticName: "timezen-static-v2", RuntimeName: "timezen-runtime-v2"},
		[]string{"/index.html"})
	require.NoError(t, err)
	require.Equal(t, "timezen-static-v1", f.lc.Current().StaticName)

	rec := f.do(jsonRequest(http.MethodPost, "/api/v1/control/message", `{"type":"SKIP_WAITING"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "timezen-static-v2", f.lc.Current().StaticName)
}

func TestPostControlMessage_CacheURLs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.network.RegisterResponder(http.MethodGet, "https://app.example.edu/division/cs-3.html",
		httpmock.NewStringResponder(http.StatusOK, "division page"))

	rec := f.do(jsonRequest(http.MethodPost, "/api/v1/control/message",
		`{"type":"CACHE_URLS","urls":["/division/cs-3.html"]}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok := f.lc.StaticCache().Match(context.Background(), "GET https://app.example.edu/division/cs-3.html")
	assert.True(t, ok)
}

func TestPostControlMessage_UnknownType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(jsonRequest(http.MethodPost, "/api/v1/control/message", `{"type":"REINSTALL"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCaches(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/caches", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timezen-static-v1")
	assert.Contains(t, rec.Body.String(), `"entries":2`)
}

func TestSubscriptions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const subURL = "https://demo-default-rtdb.firebaseio.com/notices.json"

	rec := f.do(jsonRequest(http.MethodPost, "/api/v1/subscriptions", `{"url":"`+subURL+`"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), subURL)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(jsonRequest(http.MethodDelete, "/api/v1/subscriptions", `{"url":"`+subURL+`"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.refresher.Subscriptions())
}

func TestSubscriptions_MissingURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(jsonRequest(http.MethodPost, "/api/v1/subscriptions", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProxy_ServesUpstreamPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/index.html", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>home</html>", rec.Body.String())
}

func TestProxy_OfflineServesCachedPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.network.RegisterResponder(http.MethodGet, "https://app.example.edu/index.html",
		httpmock.NewErrorResponder(assert.AnError))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>home</html>", rec.Body.String())
}

func TestProxy_BackendRouteRewrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.network.RegisterResponder(http.MethodGet, "https://demo-default-rtdb.firebaseio.com/notices.json",
		httpmock.NewStringResponder(http.StatusOK, `{"n1":{"title":"exam"}}`))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/sync/notices.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exam")
	f.transport.Drain()

	// The backend response was captured read-through under its real origin.
	_, ok := f.lc.RuntimeCache().Match(context.Background(), "GET https://demo-default-rtdb.firebaseio.com/notices.json")
	assert.True(t, ok)
}

func TestProxy_LongestBackendPrefixWins(t *testing.T) {
	t.Parallel()

	f := newFixtureWithRoutes(t, map[string]string{
		"/sync/":       "https://demo-default-rtdb.firebaseio.com",
		"/sync/admin/": "https://admin-default-rtdb.firebaseio.com",
	})
	f.network.RegisterResponder(http.MethodGet, "https://demo-default-rtdb.firebaseio.com/notices.json",
		httpmock.NewStringResponder(http.StatusOK, `{"n1":{"title":"student notice"}}`))
	f.network.RegisterResponder(http.MethodGet, "https://admin-default-rtdb.firebaseio.com/notices.json",
		httpmock.NewStringResponder(http.StatusOK, `{"n1":{"title":"admin notice"}}`))

	// The more specific prefix routes to its own backend even though the
	// shorter one also matches the path.
	rec := f.do(httptest.NewRequest(http.MethodGet, "/sync/admin/notices.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin notice")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/sync/notices.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "student notice")
}

func TestProxy_BackendUnavailableReturns502(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.network.RegisterResponder(http.MethodGet, "https://demo-default-rtdb.firebaseio.com/never-synced.json",
		httpmock.NewErrorResponder(assert.AnError))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/sync/never-synced.json", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "backend unavailable", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Generate at least one observation first.
	f.do(httptest.NewRequest(http.MethodGet, "/index.html", nil))
	f.transport.Drain()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timezen_gateway_fetch_total")
}
