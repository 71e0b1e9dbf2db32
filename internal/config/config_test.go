package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "push.device", cfg.NatsSubjectPrefix)
	assert.Equal(t, 20*time.Second, cfg.SendTimeout)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)

	// Without a YAML file every transport is enabled; credentials decide at
	// wiring time which ones actually register.
	assert.True(t, cfg.Providers.FCM.Enabled)
	assert.True(t, cfg.Providers.NATS.Enabled)
	assert.True(t, cfg.Providers.SNS.Enabled)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SEND_TIMEOUT", "5s")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
	assert.Equal(t, 50, cfg.DBMaxOpenConns)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SEND_TIMEOUT", "not-a-duration")
	t.Setenv("DB_MAX_OPEN_CONNS", "many")

	cfg := LoadConfig()

	assert.Equal(t, 20*time.Second, cfg.SendTimeout)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
}

func TestLoadProvidersConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fcm:
  enabled: true
  bulk_concurrency: 32
  send_timeout_seconds: 10
nats:
  enabled: true
sns:
  enabled: false
`), 0o600))

	cfg := loadProvidersConfig(path)

	assert.True(t, cfg.FCM.Enabled)
	assert.Equal(t, 32, cfg.FCM.BulkConcurrency)
	assert.Equal(t, 10*time.Second, cfg.FCM.SendTimeout(20*time.Second))
	assert.True(t, cfg.NATS.Enabled)
	assert.False(t, cfg.SNS.Enabled)

	// Zero timeout falls back.
	assert.Equal(t, 20*time.Second, cfg.NATS.SendTimeout(20*time.Second))
}

func TestLoadProvidersConfigMissingFile(t *testing.T) {
	cfg := loadProvidersConfig("/does/not/exist.yaml")
	assert.True(t, cfg.FCM.Enabled)
	assert.True(t, cfg.SNS.Enabled)
}

func TestLoadProvidersConfigMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fcm: [not a mapping"), 0o600))

	cfg := loadProvidersConfig(path)
	assert.True(t, cfg.FCM.Enabled)
}
