package psmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ps-manager/internal/cache"
	"github.com/magabrotheeeer/ps-manager/internal/config"
	"github.com/magabrotheeeer/ps-manager/internal/http/handlers/health"
	"github.com/magabrotheeeer/ps-manager/internal/lib/clock"
	"github.com/magabrotheeeer/ps-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ps-manager/internal/metrics"
	"github.com/magabrotheeeer/ps-manager/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "local",
		Storage:         config.Storage{Driver: config.DriverMemory},
		RedisConnection: config.RedisConnection{SessionTTL: time.Minute},
		HTTPServer:      config.HTTPServer{AddressHTTP: ":0", TimeoutHTTP: time.Second, IdleTimeout: time.Second},
		JWTToken:        config.JWTToken{JWTSecretKey: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		RateLimit:       config.RateLimit{RPS: 1000, Burst: 1000},
		Policy: config.Policy{
			SelfRegistrationGrantsAdmin: true,
			PasswordChangeScope:         "self_only",
			TenantScoping:               true,
			SessionDeleteMode:           "keep_device",
		},
	}
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

// newTestServer собирает маршруты поверх хранилища в памяти с ручными часами.
func newTestServer(t *testing.T, cfg *config.Config, clk clock.Clock) *client {
	t.Helper()
	logger := newNoopLogger()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	svc := buildServices(cfg, logger, Deps{
		Store:   memory.New(),
		Cache:   cache.Noop{},
		Events:  rabbitmq.NoopPublisher{},
		Metrics: collector,
		Clock:   clk,
	})
	router := chi.NewRouter()
	RegisterRoutes(router, logger, svc, Infra{
		Metrics:  collector,
		Gatherer: reg,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		Checks:   map[string]health.Checker{},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv}
}

type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func (c *client) do(method, path, token, body string) (int, envelope) {
	c.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (c *client) login(path, username, password string) string {
	c.t.Helper()
	status, env := c.do(http.MethodPost, path, "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Contains(c.t, []int{http.StatusOK, http.StatusCreated}, status, env.Error)
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(c.t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(c.t, res.Token)
	return res.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type sessionView struct {
	ID       int64 `json:"id"`
	DeviceID int64 `json:"device_id"`
	IsOver   bool  `json:"is_over"`
	TotalDue int64 `json:"total_due"`
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC))
	c := newTestServer(t, testConfig(), clk)

	owner := c.login("/api/v1/auth/register", "owner", "password123")

	status, env := c.do(http.MethodPost, "/api/v1/shops", owner, `{"name":"Arena","city":"Kazan"}`)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/devices", owner, `{"name":"PS5 #1","hourly_price":20}`)
	require.Equal(t, http.StatusCreated, status, env.Error)
	dev := decode[struct {
		ID     int64  `json:"id"`
		ShopID *int64 `json:"shop_id"`
	}](t, env.Data)
	require.NotNil(t, dev.ShopID, "устройство попадает в магазин владельца")

	status, env = c.do(http.MethodPost, "/api/v1/auth/add_user", owner, `{"username":"staff1","password":"password123"}`)
	require.Equal(t, http.StatusCreated, status, env.Error)
	staffID := decode[struct {
		ID int64 `json:"id"`
	}](t, env.Data).ID

	staff := c.login("/api/v1/auth/login", "staff1", "password123")

	status, env = c.do(http.MethodPost, "/api/v1/devices", staff, `{"name":"PS4","hourly_price":10}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden request", env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/sessions/start/1", staff, "")
	require.Equal(t, http.StatusCreated, status, env.Error)
	started := decode[sessionView](t, env.Data)
	assert.False(t, started.IsOver)

	status, env = c.do(http.MethodPost, "/api/v1/sessions/start/1", staff, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "device has another session already running", env.Error)

	clk.Advance(90 * time.Minute)
	status, env = c.do(http.MethodPut, "/api/v1/sessions/end/1", staff, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	ended := decode[sessionView](t, env.Data)
	assert.True(t, ended.IsOver)
	assert.Equal(t, int64(30), ended.TotalDue)

	status, env = c.do(http.MethodPut, "/api/v1/sessions/end/1", staff, "")
	assert.Equal(t, http.StatusConflict, status)

	status, env = c.do(http.MethodGet, "/api/v1/devices/1", staff, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Contains(t, string(env.Data), `"is_active":false`)

	status, env = c.do(http.MethodGet, "/api/v1/sessions", staff, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Len(t, decode[[]sessionView](t, env.Data), 1)

	status, _ = c.do(http.MethodPut, "/api/v1/auth/suspend_user/"+strconv.FormatInt(staffID, 10), owner, "")
	require.Equal(t, http.StatusOK, status)

	status, env = c.do(http.MethodGet, "/api/v1/sessions", staff, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "The user is not enabled", env.Error)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	c := newTestServer(t, testConfig(), clock.NewManual(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)))

	ownerA := c.login("/api/v1/auth/register", "ownerA", "password123")
	ownerB := c.login("/api/v1/auth/register", "ownerB", "password123")

	status, env := c.do(http.MethodPost, "/api/v1/shops", ownerA, `{"name":"A"}`)
	require.Equal(t, http.StatusCreated, status, env.Error)
	status, env = c.do(http.MethodPost, "/api/v1/shops", ownerB, `{"name":"B"}`)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/devices", ownerA, `{"name":"PS5 A","hourly_price":20}`)
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = c.do(http.MethodPost, "/api/v1/sessions/start/1", ownerB, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "resource belongs to a different shop", env.Error)

	status, env = c.do(http.MethodGet, "/api/v1/devices", ownerB, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, env = c.do(http.MethodGet, "/api/v1/shops", ownerB, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]struct {
		Name string `json:"name"`
	}](t, env.Data), 1)
}

func TestChangePasswordRoutesFollowPolicy(t *testing.T) {
	tests := []struct {
		name      string
		scope     string
		path      string
		wantFound bool
	}{
		{name: "self_only: общий маршрут", scope: "self_only", path: "/api/v1/auth/change_password", wantFound: true},
		{name: "self_only: нет маршрута по роли", scope: "self_only", path: "/api/v1/auth/change_password/user"},
		{name: "by_target_role: маршрут user", scope: "by_target_role", path: "/api/v1/auth/change_password/user", wantFound: true},
		{name: "by_target_role: маршрут admin", scope: "by_target_role", path: "/api/v1/auth/change_password/admin", wantFound: true},
		{name: "by_target_role: нет общего маршрута", scope: "by_target_role", path: "/api/v1/auth/change_password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.PasswordChangeScope = tt.scope
			c := newTestServer(t, cfg, clock.System{})
			token := c.login("/api/v1/auth/register", "owner", "password123")

			req, err := http.NewRequest(http.MethodPost, c.srv.URL+tt.path,
				strings.NewReader(`{"old_password":"password123","new_password":"password456"}`))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := c.srv.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			if tt.wantFound {
				assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
			} else {
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			}
		})
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	c := newTestServer(t, testConfig(), clock.System{})

	status, env := c.do(http.MethodGet, "/api/v1/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing or invalid authorization header", env.Error)

	status, env = c.do(http.MethodGet, "/api/v1/sessions", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid or expired token", env.Error)
}

func TestNewWithMemoryDriver(t *testing.T) {
	app, err := New(context.Background(), testConfig(), newNoopLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "psmanager_http_requests_total")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.AddressHTTP = "127.0.0.1:0"
	app, err := New(context.Background(), cfg, newNoopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}
