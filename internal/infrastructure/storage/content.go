package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

var contentColumns = []string{
	"id", "kind", "game_id", "title", "source_type", "source_name", "source_url", "raw_text", "published_at",
	"summary_tldr", "tags", "impact_score", "enrichment_status", "enriched_at", "created_at",
}

// ContentRepository persists admitted content and enqueues its enrichment.
type ContentRepository struct {
	db DB
}

var _ ports.ContentRepository = (*ContentRepository)(nil)

// NewContentRepository wires a pool.
func NewContentRepository(db DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ExistsBySourceURL checks the exact dedup key.
func (r *ContentRepository) ExistsBySourceURL(ctx context.Context, kind domain.ContentKind, sourceURL string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM content_items WHERE kind = $1 AND source_url = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, string(kind), sourceURL).Scan(&exists); err != nil {
		return false, mapError(err, "content.ExistsBySourceURL")
	}
	return exists, nil
}

// RecentTitles lists the newest titles of a game for fuzzy dedup.
func (r *ContentRepository) RecentTitles(ctx context.Context, gameID uuid.UUID, kind domain.ContentKind, limit int) ([]string, error) {
	q := psql.Select("title").From("content_items").
		Where(squirrel.Eq{"game_id": gameID, "kind": string(kind)}).
		OrderBy("published_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("content.RecentTitles: build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "content.RecentTitles")
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, mapError(err, "content.RecentTitles")
		}
		titles = append(titles, title)
	}
	return titles, mapError(rows.Err(), "content.RecentTitles")
}

// CreateWithJob inserts the item and its enrichment job in one transaction.
// A unique violation (a racing duplicate) rolls back and returns domain.ErrAlreadyExists.
func (r *ContentRepository) CreateWithJob(ctx context.Context, item domain.ContentItem, jobKind domain.JobKind) (uuid.UUID, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.EnrichmentStatus == "" {
		item.EnrichmentStatus = domain.EnrichmentPending
	}

	insertItem, itemArgs, err := psql.Insert("content_items").
		Columns("id", "kind", "game_id", "title", "source_type", "source_name", "source_url", "raw_text",
			"published_at", "impact_score", "enrichment_status").
		Values(item.ID, string(item.Kind), item.GameID, item.Title, string(item.SourceType), item.SourceName,
			item.SourceURL, item.RawText, item.PublishedAt, item.ImpactScore, string(item.EnrichmentStatus)).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("content.CreateWithJob: build query: %w", err)
	}
	insertJob, jobArgs, err := psql.Insert("enrichment_jobs").
		Columns("id", "kind", "target_id", "status").
		Values(uuid.New(), string(jobKind), item.ID, string(domain.JobPending)).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("content.CreateWithJob: build query: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, mapError(err, "content.CreateWithJob: begin")
	}
	if _, err := tx.Exec(ctx, insertItem, itemArgs...); err != nil {
		_ = tx.Rollback(ctx)
		return uuid.Nil, mapError(err, "content.CreateWithJob: insert item")
	}
	if _, err := tx.Exec(ctx, insertJob, jobArgs...); err != nil {
		_ = tx.Rollback(ctx)
		return uuid.Nil, mapError(err, "content.CreateWithJob: insert job")
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, mapError(err, "content.CreateWithJob: commit")
	}
	return item.ID, nil
}

// Get returns one content item.
func (r *ContentRepository) Get(ctx context.Context, id uuid.UUID) (domain.ContentItem, error) {
	query, args, err := psql.Select(contentColumns...).From("content_items").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("content.Get: build query: %w", err)
	}
	item, err := scanContent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.ContentItem{}, mapError(err, "content.Get")
	}
	return item, nil
}

// ApplyEnrichment writes the summary fields; it is the only mutation after admission.
func (r *ContentRepository) ApplyEnrichment(ctx context.Context, id uuid.UUID, summary domain.Summary, status domain.EnrichmentStatus, at time.Time) error {
	tags := summary.Tags
	if tags == nil {
		tags = []string{}
	}
	n, err := exec(ctx, r.db, "content.ApplyEnrichment", psql.Update("content_items").
		Set("summary_tldr", summary.TLDR).
		Set("tags", tags).
		Set("impact_score", domain.ClampImpact(summary.ImpactScore)).
		Set("enrichment_status", string(status)).
		Set("enriched_at", at).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("content.ApplyEnrichment: %w", domain.ErrNotFound)
	}
	return nil
}

// ListEnrichedSince returns items whose enrichment finished at or after since.
func (r *ContentRepository) ListEnrichedSince(ctx context.Context, since time.Time) ([]domain.ContentItem, error) {
	query, args, err := psql.Select(contentColumns...).From("content_items").
		Where(squirrel.Eq{"enrichment_status": []string{string(domain.EnrichmentCompleted), string(domain.EnrichmentFailed)}}).
		Where(squirrel.GtOrEq{"enriched_at": since}).
		OrderBy("enriched_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("content.ListEnrichedSince: build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "content.ListEnrichedSince")
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, mapError(err, "content.ListEnrichedSince")
		}
		items = append(items, item)
	}
	return items, mapError(rows.Err(), "content.ListEnrichedSince")
}

// PreviousPatchAt returns the publication time of the game's last patch before before.
func (r *ContentRepository) PreviousPatchAt(ctx context.Context, gameID uuid.UUID, before time.Time) (*time.Time, error) {
	query, args, err := psql.Select("MAX(published_at)").From("content_items").
		Where(squirrel.Eq{"game_id": gameID, "kind": string(domain.KindPatch)}).
		Where(squirrel.Lt{"published_at": before}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("content.PreviousPatchAt: build query: %w", err)
	}
	var at *time.Time
	if err := r.db.QueryRow(ctx, query, args...).Scan(&at); err != nil {
		return nil, mapError(err, "content.PreviousPatchAt")
	}
	return at, nil
}

func scanContent(row pgx.Row) (domain.ContentItem, error) {
	var (
		item                       domain.ContentItem
		kind, sourceType, enriched string
	)
	err := row.Scan(&item.ID, &kind, &item.GameID, &item.Title, &sourceType, &item.SourceName, &item.SourceURL,
		&item.RawText, &item.PublishedAt, &item.SummaryTLDR, &item.Tags, &item.ImpactScore, &enriched,
		&item.EnrichedAt, &item.CreatedAt)
	if err != nil {
		return domain.ContentItem{}, err
	}
	item.Kind = domain.ContentKind(kind)
	item.SourceType = domain.SourceType(sourceType)
	item.EnrichmentStatus = domain.EnrichmentStatus(enriched)
	return item, nil
}
