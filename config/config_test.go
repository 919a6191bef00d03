package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.InDelta(t, 10000, cfg.Portfolio.StartingCapital, 0.001)
	assert.InDelta(t, 0.20, cfg.Risk.CashReservePct, 1e-9)
	assert.Equal(t, 10, cfg.Risk.MaxPositions)
	assert.InDelta(t, 50, cfg.Risk.AutoMax, 1e-9)
	assert.InDelta(t, 200, cfg.Risk.NotifyMax, 1e-9)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 5*time.Minute, cfg.TickInterval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DESK_STORAGE_BACKEND", "sqlite")

	cfg, err := config.Load(writeConfig(t, "storage:\n  backend: file\n"))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoad_RejectsInvertedTiers(t *testing.T) {
	_, err := config.Load(writeConfig(t, "risk:\n  auto_max: 300\n  notify_max: 200\n"))
	assert.Error(t, err)
}

func TestLoad_RedisRequiresURL(t *testing.T) {
	_, err := config.Load(writeConfig(t, "storage:\n  backend: redis\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 70, cfg.Scheduler.DispatchThreshold)
}
