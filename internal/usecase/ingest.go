package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	GamesScanned  int            `json:"gamesScanned"`
	GamesDeferred int            `json:"gamesDeferred"`
	Candidates    int            `json:"candidates"`
	Admitted      int            `json:"admitted"`
	Rejected      map[string]int `json:"rejected"`
	Errors        int            `json:"errors"`
}

// Ingestor pulls candidates for the least recently checked games and admits them.
type Ingestor struct {
	games  ports.GameRepository
	source ports.CandidateSource
	gate   *Gate
	cfg    config.IngestionConfig
	clock  func() time.Time
	logger *slog.Logger
}

// NewIngestor wires the ingestion run.
func NewIngestor(games ports.GameRepository, source ports.CandidateSource, gate *Gate, cfg config.IngestionConfig, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingestor{games: games, source: source, gate: gate, cfg: cfg, clock: time.Now, logger: logger}
}

// Run scans games in batches of the configured concurrency until the cycle budget
// is spent. Games not reached keep their old lastCheckedAt and lead the next run.
func (i *Ingestor) Run(ctx context.Context, now time.Time) (IngestReport, error) {
	report := IngestReport{Rejected: map[string]int{}}
	started := i.clock()
	since := now.Add(-i.cfg.Lookback)

	games, err := i.games.ListForScan(ctx, i.cfg.GamesPerCycle)
	if err != nil {
		return report, fmt.Errorf("list games: %w", err)
	}

	sites, err := i.source.FetchSites(ctx, since)
	if err != nil {
		i.logger.WarnContext(ctx, "site feeds failed", "error", err)
	}
	i.admitAll(ctx, sites, &report)

	batch := i.cfg.Concurrency
	if batch < 1 {
		batch = 1
	}
	for start := 0; start < len(games); start += batch {
		if i.clock().Sub(started) >= i.cfg.CycleBudget || i.capped(report) || ctx.Err() != nil {
			report.GamesDeferred = len(games) - start
			i.logger.InfoContext(ctx, "ingestion deferred", "games_deferred", report.GamesDeferred)
			break
		}
		end := min(start+batch, len(games))
		chunk := games[start:end]

		candidates, err := i.source.FetchGames(ctx, chunk, since)
		if err != nil {
			i.logger.WarnContext(ctx, "game feeds failed", "error", err)
		}
		i.admitAll(ctx, candidates, &report)

		ids := make([]uuid.UUID, len(chunk))
		for k, g := range chunk {
			ids[k] = g.ID
		}
		if err := i.games.MarkChecked(ctx, ids, now); err != nil {
			return report, fmt.Errorf("mark games checked: %w", err)
		}
		report.GamesScanned += len(chunk)
	}

	i.logger.InfoContext(ctx, "ingestion finished",
		"games_scanned", report.GamesScanned,
		"candidates", report.Candidates,
		"admitted", report.Admitted,
		"duration_ms", i.clock().Sub(started).Milliseconds())
	return report, nil
}

func (i *Ingestor) capped(report IngestReport) bool {
	return i.cfg.MaxItemsPerRun > 0 && report.Candidates >= i.cfg.MaxItemsPerRun
}

func (i *Ingestor) admitAll(ctx context.Context, candidates []domain.CandidateRecord, report *IngestReport) {
	for _, c := range candidates {
		report.Candidates++
		result, err := i.gate.Admit(ctx, c)
		if err != nil {
			report.Errors++
			i.logger.WarnContext(ctx, "admission failed", "source_url", c.SourceURL, "error", err)
			continue
		}
		if result.Admitted {
			report.Admitted++
			continue
		}
		report.Rejected[string(result.Reason)]++
	}
}
