package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
	"PatchRadar/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry    *scanner.Registry
	sources     []config.SourceConfig
	concurrency int
	itemTimeout time.Duration
	logger      *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, concurrency int, itemTimeout time.Duration, log *slog.Logger) *StrategySource {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &StrategySource{
		registry:    reg,
		sources:     sources,
		concurrency: concurrency,
		itemTimeout: itemTimeout,
		logger:      log,
	}
}

type scanJob struct {
	strategy scanner.Scanner
	req      scanner.Request
}

// FetchGames runs every per-game source against every game.
func (s *StrategySource) FetchGames(ctx context.Context, games []domain.Game, since time.Time) ([]domain.CandidateRecord, error) {
	var jobs []scanJob
	for _, source := range s.sources {
		if len(source.Categories) > 0 {
			continue
		}
		strategy, err := s.resolve(source)
		if err != nil {
			return nil, err
		}
		for _, game := range games {
			jobs = append(jobs, scanJob{strategy: strategy, req: scanner.Request{
				Game:     game,
				SiteName: source.Name,
				Kind:     domain.ContentKind(source.Kind),
				Since:    since,
				Options:  source.Options,
			}})
		}
	}
	return s.run(ctx, jobs), nil
}

// FetchSites runs every site-level source once.
func (s *StrategySource) FetchSites(ctx context.Context, since time.Time) ([]domain.CandidateRecord, error) {
	var jobs []scanJob
	for _, source := range s.sources {
		if len(source.Categories) == 0 {
			continue
		}
		strategy, err := s.resolve(source)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, scanJob{strategy: strategy, req: scanner.Request{
			SiteName:   source.Name,
			Kind:       domain.ContentKind(source.Kind),
			Since:      since,
			Categories: toScannerCategories(source.Categories),
			Options:    source.Options,
		}})
	}
	return s.run(ctx, jobs), nil
}

func (s *StrategySource) resolve(source config.SourceConfig) (scanner.Scanner, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	strategy, err := s.registry.Resolve(source.Scanner)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.Name, err)
	}
	return scanner.Guard(strategy, s.logger), nil
}

func (s *StrategySource) run(ctx context.Context, jobs []scanJob) []domain.CandidateRecord {
	var (
		mu         sync.Mutex
		aggregated []domain.CandidateRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			itemCtx := gctx
			if s.itemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(gctx, s.itemTimeout)
				defer cancel()
			}

			results, _ := job.strategy.Scan(itemCtx, job.req)
			for i := range results {
				if results[i].SourceName == "" {
					results[i].SourceName = job.req.SiteName
				}
			}
			s.logger.Debug("source produced candidates",
				"source", job.req.SiteName, "game", job.req.Game.Name, "count", len(results))

			mu.Lock()
			aggregated = append(aggregated, results...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug("strategy source done", "jobs", len(jobs), "total_candidates", len(aggregated))
	return aggregated
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}
