package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/ticketbridge/internal/storage"
	"github.com/erauner12/ticketbridge/internal/store"
	"github.com/erauner12/ticketbridge/internal/webhook"
)

// fakeDurable is a map-backed durable tier for router tests.
type fakeDurable struct {
	mu      sync.Mutex
	data    map[string][]byte
	pingErr error
	swept   int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{data: map[string][]byte{}}
}

func (f *fakeDurable) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (f *fakeDurable) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return nil
}

func (f *fakeDurable) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeDurable) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeDurable) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDurable) Sweep(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swept, nil
}

// idleQueue never yields an event; the consumer stays healthy and idle.
type idleQueue struct{}

func (idleQueue) Pop(context.Context, time.Duration) (string, error) { return "", webhook.ErrQueueEmpty }
func (idleQueue) Len(context.Context) (int64, error)                 { return 0, nil }
func (idleQueue) Ping(context.Context) error                         { return nil }
func (idleQueue) Close() error                                       { return nil }

func newTestServer(t *testing.T, durable *fakeDurable) (*Server, *storage.Engine) {
	t.Helper()

	reg := prometheus.NewRegistry()
	l1, err := storage.NewMemory(100)
	require.NoError(t, err)
	engine := storage.NewEngine(l1, nil, durable, storage.EngineConfig{
		DefaultTTL: time.Minute,
		Metrics:    storage.NewMetrics(reg, true),
	})

	consumer := webhook.NewConsumer(idleQueue{}, webhook.NewDispatcher(), webhook.Config{}, nil)
	return &Server{
		Store:    store.New(nil, engine, time.Minute),
		Consumer: consumer,
		Registry: reg,
	}, engine
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tiers    map[string]bool `json:"tiers"`
		Consumer webhook.Health  `json:"consumer"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Tiers["postgres"])
	assert.True(t, body.Tiers["memory"])
	assert.False(t, body.Tiers["redis"], "no redis tier configured")
	assert.Equal(t, "idle", body.Consumer.State)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	durable := newFakeDurable()
	durable.pingErr = storage.ErrNotConnected
	srv, _ := newTestServer(t, durable)
	h := srv.Routes(AdminJWTCfg{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	srv, engine := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{})
	ctx := context.Background()

	require.NoError(t, engine.Set(ctx, "k", []byte(`"v"`), 0))
	_, err := engine.Get(ctx, "k")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.L1Hits)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, 1, stats.L1MemorySize)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticketbridge_storage_l1_hits_total")
}

func signAdminToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminAuth(t *testing.T) {
	srv, engine := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{HS256Secret: "test-secret"})
	ctx := context.Background()

	require.NoError(t, engine.Set(ctx, "bot:config:greeting", []byte(`{}`), 0))
	body := `{"pattern":"bot:config","id":"greeting"}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no token")

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "wrong-secret"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong secret")

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, "test-secret"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuth_DevModeBypass(t *testing.T) {
	srv, _ := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{DevMode: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/sweep", nil)
	req.Header.Set("X-Debug-Admin", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The bypass header means nothing without DevMode.
	strict := srv.Routes(AdminJWTCfg{HS256Secret: "s"})
	req = httptest.NewRequest(http.MethodPost, "/v1/admin/cache/sweep", nil)
	req.Header.Set("X-Debug-Admin", "1")
	rec = httptest.NewRecorder()
	strict.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCacheClear(t *testing.T) {
	srv, engine := newTestServer(t, newFakeDurable())
	h := srv.Routes(AdminJWTCfg{DevMode: true})
	ctx := context.Background()

	require.NoError(t, engine.Set(ctx, "mapping:thread:Th1", []byte(`{}`), 0))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/clear", strings.NewReader(body))
		req.Header.Set("X-Debug-Admin", "1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"pattern":"mapping:thread"}`).Code, "id required")
	assert.Equal(t, http.StatusBadRequest, post(`{"pattern":"everything","id":"x"}`).Code, "pattern outside the enum")

	rec := post(`{"pattern":"mapping:thread","id":"Th1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := engine.Get(ctx, "mapping:thread:Th1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCacheSweep(t *testing.T) {
	durable := newFakeDurable()
	durable.swept = 7
	srv, _ := newTestServer(t, durable)
	h := srv.Routes(AdminJWTCfg{DevMode: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/cache/sweep", nil)
	req.Header.Set("X-Debug-Admin", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 7, body["removed"])
}
