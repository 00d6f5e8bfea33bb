package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDefaultsForOmittedKeys(t *testing.T) {
	t.Parallel()

	raw := []byte(`
database:
  driver: memory
ingestion:
  concurrency: 8
  cycleBudget: 90s
games:
  - name: Deep Rock Galactic
    aliases: [DRG]
    steamAppId: 548430
`)
	cfg, err := Parse(raw, defaultConfig())
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Database.Driver)
	assert.Equal(t, 8, cfg.Ingestion.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Ingestion.CycleBudget)
	assert.Equal(t, 20*time.Second, cfg.Ingestion.ItemTimeout)
	assert.Equal(t, 3, cfg.Notifications.MinPushPriority)
	require.Len(t, cfg.Games, 1)
	assert.Equal(t, []string{"DRG"}, cfg.Games[0].Aliases)
	assert.NoError(t, cfg.Validate())
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	cfg, err := Parse([]byte("database: ["), base)
	assert.Error(t, err)
	assert.Equal(t, base.Database, cfg.Database)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Database.DSN = ""
	cfg.Scheduler.DailyHour = 24
	cfg.Notifications.MinPushPriority = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "database.dsn")
	assert.ErrorContains(t, err, "dailyHour")
	assert.ErrorContains(t, err, "minPushPriority")
}

func TestLoadAppliesFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patchradar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n  cronSecret: from-file\n"), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv("CRON_SECRET", "from-env")
	t.Setenv("STORAGE_DRIVER", StorageMemory)

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Server.CronSecret)
	assert.Equal(t, StorageMemory, cfg.Database.Driver)
	assert.Len(t, cfg.Sources, 3)
	assert.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
}
