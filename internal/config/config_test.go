package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coreloop.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
queue_capacity = 64
strict = true

[loop]
frame_rate = "33ms"
fixed_housekeeping = "after"

[logging]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Scheduler.QueueCapacity)
	assert.Equal(t, 512, cfg.Scheduler.PendingCapacity)
	assert.True(t, cfg.Scheduler.Strict)
	assert.Equal(t, 33*time.Millisecond, cfg.Loop.FrameRate)
	assert.Equal(t, 20*time.Millisecond, cfg.Loop.FixedStep)
	assert.Equal(t, "after", cfg.Loop.FixedHousekeeping)
	assert.Equal(t, "both", cfg.Loop.UpdateHousekeeping)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "coreloop.toml"))
	require.NoError(t, err)
	assert.Equal(t, "before", cfg.Loop.FixedHousekeeping)
	assert.Equal(t, 30*time.Minute, cfg.Journal.ConnMaxLifetime)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeConfig(t, "[loop\nframe_rate = 1"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "[loop]\nmax_fixed_steps = 0\n"))
	assert.ErrorContains(t, err, "max_fixed_steps")

	_, err = Load(writeConfig(t, "[journal]\nenabled = true\ndsn = \"\"\n"))
	assert.ErrorContains(t, err, "journal.dsn")
}
