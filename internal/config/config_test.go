package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Events.Backend)
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, "none", cfg.Triage.Provider)
	assert.Equal(t, 30*time.Second, cfg.Triage.Timeout())
	assert.Equal(t, 15*time.Second, cfg.Workflow.NotifyTimeout())
	assert.Equal(t, time.Second, cfg.Workflow.RetryBackoff())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoad_yamlThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
app:
  port: "9090"
triage:
  provider: openai
  model: gpt-4o-mini
events:
  backend: kafka
  kafka_brokers: ["k1:9092"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("TRIAGE_MODEL", "gpt-4.1-mini")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "openai", cfg.Triage.Provider)
	assert.Equal(t, "gpt-4.1-mini", cfg.Triage.Model)
	assert.Equal(t, "kafka", cfg.Events.Backend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.KafkaBrokers)
	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
}

func TestLoad_invalidBackend(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "carrier-pigeon")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_invalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestGetEnvAsInt_badValueFallsBack(t *testing.T) {
	t.Setenv("WORKFLOW_MAX_ATTEMPTS", "lots")
	assert.Equal(t, 3, getEnvAsInt("WORKFLOW_MAX_ATTEMPTS", 3))
}
