package core_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/bus"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/cache"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/core"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/internal/rules"
	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			SweepInterval:    time.Minute,
			HeartbeatTimeout: 5 * time.Minute,
		},
		Dispatcher: config.DispatcherConfig{Tick: 10 * time.Millisecond},
		Bus:        config.BusConfig{HistoryCapacity: 100},
		Cache:      config.CacheConfig{DefaultTTL: time.Minute},
		Rules:      config.RulesConfig{HistoryCapacity: 10},
	}
}

func TestNotifyEntityChangeInvalidatesAndEmits(t *testing.T) {
	c := core.New(newTestLogger(), newTestConfig())

	// Warm a cache entry for tenant 5's vehicle listing.
	_, err := c.Cache.GetOrCompute(context.Background(), "listado_vehiculos", nil,
		cache.Scope{TenantID: 5},
		func(ctx context.Context) (interface{}, error) { return "rows", nil })
	require.NoError(t, err)
	require.True(t, c.Cache.Has("listado_vehiculos", nil, cache.Scope{TenantID: 5}))

	c.NotifyEntityChange("vehiculos", "v-12", 5, "update")

	assert.False(t, c.Cache.Has("listado_vehiculos", nil, cache.Scope{TenantID: 5}),
		"mutation must force cache freshness without waiting for TTL")

	events := c.Bus.History(0, bus.TypeVehicleChanged)
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].TenantID)
}

func TestEntityChangeDoesNotTouchOtherTenants(t *testing.T) {
	c := core.New(newTestLogger(), newTestConfig())
	fn := func(ctx context.Context) (interface{}, error) { return 1, nil }

	_, _ = c.Cache.GetOrCompute(context.Background(), "listado_vehiculos", nil, cache.Scope{TenantID: 5}, fn)
	_, _ = c.Cache.GetOrCompute(context.Background(), "listado_vehiculos", nil, cache.Scope{TenantID: 6}, fn)

	c.NotifyEntityChange("vehiculos", "v-1", 5, "delete")

	assert.True(t, c.Cache.Has("listado_vehiculos", nil, cache.Scope{TenantID: 6}))
}

func TestIngestSnapshotFiresDefaultRules(t *testing.T) {
	c := core.New(newTestLogger(), newTestConfig())

	fired := c.IngestSnapshot(context.Background(), 7, rules.Snapshot{
		Stats: rules.GeneralStats{
			VehiculosActivos:         3,
			VehiculosEnMantenimiento: 2,
			RutasActivas:             1,
		},
	})

	require.Len(t, fired, 1)
	assert.Equal(t, "vehicle_maintenance", fired[0].Payload["ruleId"])

	// The firing is retained in the tenant's notification history.
	entries := c.Rules.History(7, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, "vehicle_maintenance", entries[0].RuleID)
}

func TestRunLifecycle(t *testing.T) {
	c := core.New(newTestLogger(), newTestConfig())
	require.False(t, c.Started())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, c.Started, time.Second, 5*time.Millisecond)
	assert.Greater(t, c.Uptime(), time.Duration(0))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("core did not shut down")
	}
	assert.False(t, c.Started())
}
