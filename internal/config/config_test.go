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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: dev
storage:
  driver: postgres
postgres:
  dsn: postgres://u:p@localhost:5432/assembly
  lock_timeout: 750ms
events:
  brokers: ["kafka:9092"]
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, 750*time.Millisecond, c.Postgres.LockTimeout)
	assert.Equal(t, int32(10), c.Postgres.MaxConns)
	assert.Equal(t, int64(50), c.Notify.LowStockThreshold)
	assert.Equal(t, []string{"kafka:9092"}, c.Events.Brokers)
	assert.Equal(t, "assemblyos.production", c.Events.Topic)
	assert.True(t, c.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
`)
	t.Setenv("APP_HTTP_ADDR", ":9999")
	t.Setenv("APP_NOTIFY_LOW_STOCK_THRESHOLD", "5")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.HTTP.Addr)
	assert.Equal(t, int64(5), c.Notify.LowStockThreshold)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"postgres without dsn": "storage:\n  driver: postgres\n",
		"unknown driver":       "storage:\n  driver: sqlite\n",
		"negative threshold":   "storage:\n  driver: memory\nnotify:\n  low_stock_threshold: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
