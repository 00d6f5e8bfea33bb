package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
	"PatchRadar/internal/rules"
)

const fallbackTLDRRunes = 200

// EnrichmentWorker drains the durable job queue through the summarizer.
type EnrichmentWorker struct {
	content    ports.ContentRepository
	jobs       ports.JobRepository
	summarizer ports.Summarizer
	cfg        config.EnrichmentConfig
	clock      func() time.Time
	metrics    ports.Metrics
	logger     *slog.Logger
}

// NewEnrichmentWorker wires the worker. A nil summarizer stores fallback summaries only.
func NewEnrichmentWorker(content ports.ContentRepository, jobs ports.JobRepository, summarizer ports.Summarizer,
	cfg config.EnrichmentConfig, metrics ports.Metrics, logger *slog.Logger) *EnrichmentWorker {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	return &EnrichmentWorker{
		content:    content,
		jobs:       jobs,
		summarizer: summarizer,
		cfg:        cfg,
		clock:      func() time.Time { return time.Now().UTC() },
		metrics:    metrics,
		logger:     logger,
	}
}

// Drain claims up to limit pending jobs and processes them one by one.
// Stale processing jobs are returned to the queue first.
func (w *EnrichmentWorker) Drain(ctx context.Context, limit int) (int, error) {
	if limit < 1 {
		limit = w.cfg.BatchSize
	}
	if w.cfg.StaleAfter > 0 {
		reset, err := w.jobs.ResetStale(ctx, w.clock().Add(-w.cfg.StaleAfter))
		if err != nil {
			return 0, fmt.Errorf("reset stale jobs: %w", err)
		}
		if reset > 0 {
			w.logger.InfoContext(ctx, "stale jobs requeued", "count", reset)
		}
	}

	jobs, err := w.jobs.ClaimPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}

	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		status, err := w.process(ctx, job)
		if err != nil {
			w.logger.ErrorContext(ctx, "enrichment job failed to persist", "job_id", job.ID, "error", err)
			continue
		}
		w.metrics.CountEnrichment(status)
		processed++
	}
	return processed, nil
}

func (w *EnrichmentWorker) process(ctx context.Context, job domain.EnrichmentJob) (domain.JobStatus, error) {
	item, err := w.content.Get(ctx, job.TargetID)
	if errors.Is(err, domain.ErrNotFound) {
		return w.jobs.Fail(ctx, job.ID, "content item missing", 1)
	}
	if err != nil {
		return "", fmt.Errorf("load content: %w", err)
	}

	summary, err := w.summarize(ctx, job, item)
	switch {
	case err == nil:
		return w.complete(ctx, job, item, summary)
	case errors.Is(err, domain.ErrMalformedOutput):
		w.logger.WarnContext(ctx, "summary malformed, using fallback", "job_id", job.ID, "content_id", item.ID)
		return w.complete(ctx, job, item, FallbackSummary(item))
	}

	status, failErr := w.jobs.Fail(ctx, job.ID, err.Error(), w.cfg.MaxAttempts)
	if failErr != nil {
		return "", fmt.Errorf("record failure: %w", failErr)
	}
	w.logger.WarnContext(ctx, "summarization failed", "job_id", job.ID, "status", status, "error", err)
	if status == domain.JobFailed {
		if err := w.content.ApplyEnrichment(ctx, item.ID, FallbackSummary(item), domain.EnrichmentFailed, w.clock()); err != nil {
			return "", fmt.Errorf("store fallback summary: %w", err)
		}
	}
	return status, nil
}

func (w *EnrichmentWorker) summarize(ctx context.Context, job domain.EnrichmentJob, item domain.ContentItem) (domain.Summary, error) {
	if w.summarizer == nil {
		return domain.Summary{}, domain.ErrMalformedOutput
	}
	return w.summarizer.Summarize(ctx, job.Kind, item.Title, item.RawText)
}

func (w *EnrichmentWorker) complete(ctx context.Context, job domain.EnrichmentJob, item domain.ContentItem, summary domain.Summary) (domain.JobStatus, error) {
	if err := w.content.ApplyEnrichment(ctx, item.ID, summary, domain.EnrichmentCompleted, w.clock()); err != nil {
		return "", fmt.Errorf("store summary: %w", err)
	}
	if err := w.jobs.Complete(ctx, job.ID); err != nil {
		return "", fmt.Errorf("complete job: %w", err)
	}
	return domain.JobCompleted, nil
}

// FallbackSummary derives a deterministic summary from the item alone.
func FallbackSummary(item domain.ContentItem) domain.Summary {
	tldr := strings.Join(strings.Fields(item.RawText), " ")
	if tldr == "" {
		tldr = strings.TrimSpace(item.Title)
	}
	tldr = truncateRunes(tldr, fallbackTLDRRunes)

	var tags []string
	if rules.CountBalanceChanges(item.RawText) > 0 {
		tags = append(tags, "balance")
	}
	lower := strings.ToLower(item.RawText)
	if strings.Contains(lower, "fix") {
		tags = append(tags, "bugfix")
	}
	return domain.Summary{TLDR: tldr, Tags: tags, ImpactScore: domain.DefaultImpactScore}
}
