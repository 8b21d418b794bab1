package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
postgres:
  dsn: "host=localhost user=app dbname=app"
`)
	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.True(t, cfg.Recharge.Min().Equal(decimal.RequireFromString("30.00")))
	assert.True(t, cfg.Recharge.Max().Equal(decimal.RequireFromString("10000.00")))
	assert.Equal(t, 15*time.Minute, cfg.Recharge.Expiry())
	assert.Equal(t, time.Second, cfg.Recharge.PollInterval())
	assert.Equal(t, 15*time.Second, cfg.Gateway.Timeout())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
recharge:
  min_amount: "10.00"
  max_amount: "500.00"
  expiry_seconds: 60
  poll_interval_ms: 250
gateway:
  base_url: "https://pay.example.com/api"
  secret_key: "file-key"
  timeout_seconds: 5
`)
	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.True(t, cfg.Recharge.Min().Equal(decimal.RequireFromString("10.00")))
	assert.True(t, cfg.Recharge.Max().Equal(decimal.RequireFromString("500.00")))
	assert.Equal(t, time.Minute, cfg.Recharge.Expiry())
	assert.Equal(t, 250*time.Millisecond, cfg.Recharge.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, "file-key", cfg.Gateway.SecretKey)
}

func TestLoadEnvSecrets(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "hunter2")
	t.Setenv("GATEWAY_SECRET_KEY", "env-key")

	path := writeConfig(t, `
postgres:
  dsn: "host=localhost user=app dbname=app"
gateway:
  secret_key: "file-key"
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "host=localhost user=app dbname=app password=hunter2", cfg.Postgres.DSN)
	assert.Equal(t, "env-key", cfg.Gateway.SecretKey)
}

func TestLoadRejectsBadBounds(t *testing.T) {
	_, err := Load(writeConfig(t, `
recharge:
  min_amount: "100.00"
  max_amount: "50.00"
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
recharge:
  min_amount: "not-a-number"
`))
	assert.Error(t, err)
}
