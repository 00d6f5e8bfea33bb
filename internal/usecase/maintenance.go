package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"PatchRadar/internal/catalog"
	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// DiscoveryReport summarizes one discovery pass.
type DiscoveryReport struct {
	Seen  int `json:"seen"`
	Added int `json:"added"`
}

// Maintenance holds the slow-cadence tasks: discovery, catalog sync and retention.
type Maintenance struct {
	games     ports.GameRepository
	notes     ports.NotificationRepository
	directory ports.GameDirectory
	catalog   *catalog.Catalog
	limit     int
	retention time.Duration
	logger    *slog.Logger
}

// NewMaintenance wires the tasks. directory may be nil to disable discovery.
func NewMaintenance(games ports.GameRepository, notes ports.NotificationRepository, directory ports.GameDirectory,
	cat *catalog.Catalog, discoveryLimit, retentionDays int, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Maintenance{
		games:     games,
		notes:     notes,
		directory: directory,
		catalog:   cat,
		limit:     discoveryLimit,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
	}
}

// SeedGames upserts the games listed in configuration.
func (m *Maintenance) SeedGames(ctx context.Context, games []config.GameConfig) (int, error) {
	added := 0
	for _, g := range games {
		slug := catalog.Slugify(g.Name)
		if slug == "" {
			continue
		}
		created, err := m.games.UpsertBySteamAppID(ctx, domain.Game{
			Name:       g.Name,
			Slug:       slug,
			Aliases:    g.Aliases,
			SteamAppID: g.SteamAppID,
			Subreddit:  g.Subreddit,
			FeedURLs:   g.FeedURLs,
		})
		if err != nil {
			return added, fmt.Errorf("seed game %s: %w", g.Name, err)
		}
		if created {
			added++
		}
	}
	return added, nil
}

// DiscoverGames adds popular upstream games that are not tracked yet.
func (m *Maintenance) DiscoverGames(ctx context.Context) (DiscoveryReport, error) {
	var report DiscoveryReport
	if m.directory == nil {
		return report, nil
	}
	games, err := m.directory.TopGames(ctx, m.limit)
	if err != nil {
		return report, fmt.Errorf("top games: %w", err)
	}
	report.Seen = len(games)
	for _, g := range games {
		created, err := m.games.UpsertBySteamAppID(ctx, g)
		if err != nil {
			return report, fmt.Errorf("upsert %s: %w", g.Name, err)
		}
		if created {
			report.Added++
			m.logger.InfoContext(ctx, "game discovered", "name", g.Name, "steam_app_id", g.SteamAppID)
		}
	}
	if report.Added > 0 {
		if _, err := m.SyncCatalog(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// SyncCatalog reloads the alias lookup from the game table.
func (m *Maintenance) SyncCatalog(ctx context.Context) (int, error) {
	games, err := m.games.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list games: %w", err)
	}
	m.catalog.Load(games)
	return m.catalog.Len(), nil
}

// Retention deletes read notifications older than the retention window.
func (m *Maintenance) Retention(ctx context.Context, now time.Time) (int, error) {
	if m.retention <= 0 {
		return 0, nil
	}
	n, err := m.notes.DeleteReadBefore(ctx, now.Add(-m.retention))
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return n, nil
}
