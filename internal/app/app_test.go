package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatchRadar/internal/config"
)

func memoryConfig(upstream string) config.Config {
	return config.Config{
		Logging:  config.LoggingConfig{Level: "error"},
		Database: config.DatabaseConfig{Driver: config.StorageMemory},
		Server:   config.ServerConfig{Addr: "127.0.0.1:0", CronSecret: "s3cret"},
		Scheduler: config.SchedulerConfig{
			TickInterval:        time.Hour,
			DiscoveryEveryHours: 1,
			DailyHour:           3,
		},
		Ingestion: config.IngestionConfig{
			Concurrency:    2,
			ItemTimeout:    time.Second,
			CycleBudget:    time.Minute,
			Lookback:       24 * time.Hour,
			UserAgent:      "PatchRadar-test",
			GamesPerCycle:  10,
			MaxItemsPerRun: 100,
		},
		Enrichment:    config.EnrichmentConfig{BatchSize: 5, MaxAttempts: 3, StaleAfter: time.Minute},
		Notifications: config.NotificationConfig{Lookback: time.Hour, MinPushPriority: 3, RetentionDays: 30},
		Steam:         config.SteamConfig{APIBase: upstream, StoreBase: upstream, NewsCount: 5, DiscoveryLimit: 5},
		Reddit:        config.RedditConfig{APIBase: upstream, Limit: 5},
		Games: []config.GameConfig{
			{Name: "Deep Rock Galactic", Aliases: []string{"DRG"}, SteamAppID: 548430},
			{Name: "Starfall Tactics"},
		},
	}
}

func TestRunOnceWithMemoryStorage(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	ctx := context.Background()
	application, err := New(ctx, memoryConfig(upstream.URL), nil)
	require.NoError(t, err)
	defer application.Close()

	require.NoError(t, application.Bootstrap(ctx))
	games, err := application.repos.games.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, games, 2)

	report := application.RunOnce(ctx)
	assert.False(t, report.Skipped)
	assert.Contains(t, report.TasksRun, TaskDiscoverGames)
	assert.Contains(t, report.TasksRun, TaskFetchContent)
	assert.Contains(t, report.TasksRun, "processEnrichment")
	assert.Contains(t, report.TasksRun, TaskProcessNotifications)
	// an unavailable directory fails discovery only
	assert.Contains(t, report.Errors, TaskDiscoverGames)
	assert.NotContains(t, report.Errors, TaskFetchContent)
	assert.NotContains(t, report.Errors, TaskProcessEnrichment)
	assert.NotContains(t, report.Errors, TaskProcessNotifications)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig("http://127.0.0.1:1")
	cfg.Database.Driver = "sqlite"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
