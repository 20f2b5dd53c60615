package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/User-Default-MvM/TranSync-BackEnd-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(discardLogger(), "no-such-config-file")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 2*time.Minute, cfg.Server.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Server.HeartbeatTimeout)
	assert.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.Equal(t, 50*time.Millisecond, cfg.Dispatcher.Tick)
	assert.Equal(t, 1000, cfg.Bus.HistoryCapacity)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 100, cfg.Rules.HistoryCapacity)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
logLevel: debug
server:
  address: ":9999"
  sweepInterval: 30s
cache:
  defaultTTL: 90s
  categories:
    dashboard_realtime: 15s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testconfig.yaml"), []byte(content), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := config.Load(discardLogger(), "testconfig")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.SweepInterval)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 15*time.Second, cfg.Cache.Categories["dashboard_realtime"])
	// Unset keys fall back to defaults.
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
}
