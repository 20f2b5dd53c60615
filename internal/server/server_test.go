package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/bus"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/core"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/server/middleware"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T, start bool) (*App, *core.Core) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:          "127.0.0.1:0",
			Auth:             config.AuthConfig{JWTSecret: testSecret},
			SweepInterval:    time.Minute,
			HeartbeatTimeout: 5 * time.Minute,
		},
		Transport: config.TransportConfig{
			ReadTimeout: 5 * time.Second,
			SendBuffer:  8,
		},
		Dispatcher: config.DispatcherConfig{Tick: 10 * time.Millisecond},
		Bus:        config.BusConfig{HistoryCapacity: 100},
		Cache:      config.CacheConfig{DefaultTTL: time.Minute},
		Rules:      config.RulesConfig{HistoryCapacity: 10},
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := core.New(logger, cfg)
	app := NewApp(logger, ctx, cfg, c)

	if start {
		done := make(chan struct{})
		go func() {
			c.Run(ctx)
			close(done)
		}()
		require.Eventually(t, c.Started, time.Second, 5*time.Millisecond)
		t.Cleanup(func() {
			cancel()
			<-done
		})
	} else {
		t.Cleanup(cancel)
	}
	return app, c
}

func signToken(t *testing.T, subject string, tenantID int, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.AppClaims{
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	app.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminUnavailableBeforeStart(t *testing.T) {
	app, _ := newTestApp(t, false)

	for _, path := range []string{"/admin/stats", "/admin/clients", "/admin/metrics"} {
		rec := doJSON(t, app, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp["status"])
	}
}

func TestAdminStats(t *testing.T) {
	app, _ := newTestApp(t, true)

	rec := doJSON(t, app, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "connections")
	assert.Contains(t, resp, "dispatcher")
	assert.Contains(t, resp, "cache")
}

func TestPostNotificationValidation(t *testing.T) {
	app, _ := newTestApp(t, true)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "unknown target type",
			body: map[string]any{"targetType": "galaxy", "targetId": "1", "event": "x"},
			want: http.StatusBadRequest,
		},
		{
			name: "missing event",
			body: map[string]any{"targetType": "tenant", "targetId": "1"},
			want: http.StatusBadRequest,
		},
		{
			name: "missing target id",
			body: map[string]any{"targetType": "user", "event": "x"},
			want: http.StatusBadRequest,
		},
		{
			name: "broadcast needs no target id",
			body: map[string]any{"targetType": "broadcast", "event": "system:announcement"},
			want: http.StatusAccepted,
		},
		{
			name: "valid tenant notification",
			body: map[string]any{"targetType": "tenant", "targetId": "5", "event": "dashboard:notification", "priority": "high"},
			want: http.StatusAccepted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, app, http.MethodPost, "/admin/notifications", tc.body)
			require.Equal(t, tc.want, rec.Code)

			if tc.want == http.StatusAccepted {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "queued", resp["status"])
				assert.NotEmpty(t, resp["id"])
			}
		})
	}
}

func TestNotificationHistoryRequiresTenant(t *testing.T) {
	app, _ := newTestApp(t, true)

	rec := doJSON(t, app, http.MethodGet, "/admin/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, app, http.MethodGet, "/admin/notifications?tenantId=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupRemovesTransientListeners(t *testing.T) {
	app, c := newTestApp(t, true)

	c.Bus.On(bus.TypeVehicleChanged, func(bus.Event) {}, bus.SubscribeOptions{})
	before := c.Bus.Stats().Listeners

	rec := doJSON(t, app, http.MethodPost, "/admin/cleanup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["removedListeners"])
	// The core's persistent dashboard listener must survive.
	assert.Equal(t, before-1, c.Bus.Stats().Listeners)
}

func TestMarkReadUnknownNotification(t *testing.T) {
	app, _ := newTestApp(t, true)

	rec := doJSON(t, app, http.MethodPost, "/admin/notifications/not-a-real-id/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketHandshakeRejectsMissingToken(t *testing.T) {
	app, _ := newTestApp(t, true)
	srv := httptest.NewServer(app.http.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	//nolint:bodyclose // Dial fails before a connection exists.
	_, _, err := websocket.Dial(ctx, wsURL(srv)+"/ws", nil)
	assert.Error(t, err)
}

func TestWebsocketPingPong(t *testing.T) {
	app, c := newTestApp(t, true)
	srv := httptest.NewServer(app.http.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := signToken(t, "u-1", 5, "ADMINISTRADOR")
	conn, _, err := websocket.Dial(ctx, wsURL(srv)+"/ws?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return c.Registry.IsUserConnected("u-1")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"event":"ping"}`)))

	_, msg, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong"}`, string(msg))
}

func TestWebsocketDisconnectUnregisters(t *testing.T) {
	app, c := newTestApp(t, true)
	srv := httptest.NewServer(app.http.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := signToken(t, "u-2", 5, "GESTOR")
	conn, _, err := websocket.Dial(ctx, wsURL(srv)+"/ws?token="+token, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.Registry.IsUserConnected("u-2")
	}, time.Second, 5*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")

	require.Eventually(t, func() bool {
		return !c.Registry.IsUserConnected("u-2")
	}, 2*time.Second, 10*time.Millisecond)
}

func wsURL(srv *httptest.Server) string {
	return strings.Replace(srv.URL, "http", "ws", 1)
}
