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

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "ledger-profile-changes", cfg.Kafka.Topic)
	assert.Equal(t, int64(100), cfg.Rewards.VideoCoins)
	assert.Equal(t, int64(100), cfg.Rewards.VideoXP)
	assert.Equal(t, int64(1), cfg.Rewards.VideoBadges)
	assert.Equal(t, int64(20), cfg.Rewards.QuizPerPoint)
	assert.Equal(t, int64(1), cfg.Rewards.QuizBadges)
	assert.Equal(t, "http://localhost:8080", cfg.Client.BaseURL)
	assert.True(t, cfg.Sync.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("LEDGER_PG_PASSWORD", "s3cret")
	path := writeConfig(t, `
server:
  port: 9090
postgres:
  password: ${LEDGER_PG_PASSWORD}
storage:
  driver: memory
auth:
  session_ttl: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "http://localhost:9090", cfg.Client.BaseURL)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: sqlite\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestLoad_RejectsNegativeRewards(t *testing.T) {
	path := writeConfig(t, "rewards:\n  video_coins: -5\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "rewards must not be negative")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	pg := PostgresConfig{User: "ledger", Password: "pw", Host: "db", Port: 5432, Database: "ecoquest"}
	assert.Equal(t, "postgres://ledger:pw@db:5432/ecoquest?sslmode=disable", pg.ConnectionString())
}
