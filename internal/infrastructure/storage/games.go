package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

var gameColumns = []string{
	"id", "name", "slug", "aliases", "steam_app_id", "subreddit", "feed_urls", "last_checked_at", "created_at",
}

// GameRepository stores the tracked game catalog.
type GameRepository struct {
	db DB
}

var _ ports.GameRepository = (*GameRepository)(nil)

// NewGameRepository wires a pool.
func NewGameRepository(db DB) *GameRepository {
	return &GameRepository{db: db}
}

// ListForScan returns games least recently checked first; never-checked games lead.
func (r *GameRepository) ListForScan(ctx context.Context, limit int) ([]domain.Game, error) {
	q := psql.Select(gameColumns...).From("games").OrderBy("last_checked_at ASC NULLS FIRST", "name ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.list(ctx, "games.ListForScan", q)
}

// ListAll returns every game ordered by name.
func (r *GameRepository) ListAll(ctx context.Context) ([]domain.Game, error) {
	return r.list(ctx, "games.ListAll", psql.Select(gameColumns...).From("games").OrderBy("name ASC"))
}

// Get returns one game.
func (r *GameRepository) Get(ctx context.Context, id uuid.UUID) (domain.Game, error) {
	query, args, err := psql.Select(gameColumns...).From("games").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Game{}, fmt.Errorf("games.Get: build query: %w", err)
	}
	game, err := scanGame(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Game{}, mapError(err, "games.Get")
	}
	return game, nil
}

// MarkChecked stamps last_checked_at for the scanned games.
func (r *GameRepository) MarkChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := exec(ctx, r.db, "games.MarkChecked", psql.Update("games").
		Set("last_checked_at", at).
		Where(squirrel.Eq{"id": ids}))
	return err
}

// UpsertBySteamAppID inserts a discovered game unless its app id or slug is already known.
func (r *GameRepository) UpsertBySteamAppID(ctx context.Context, game domain.Game) (bool, error) {
	if game.ID == uuid.Nil {
		game.ID = uuid.New()
	}
	query, args, err := psql.Insert("games").
		Columns("id", "name", "slug", "aliases", "steam_app_id", "subreddit", "feed_urls").
		Values(game.ID, game.Name, game.Slug, nonNil(game.Aliases), nullableInt(game.SteamAppID), game.Subreddit, nonNil(game.FeedURLs)).
		Suffix("ON CONFLICT DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("games.UpsertBySteamAppID: build query: %w", err)
	}

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, mapError(err, "games.UpsertBySteamAppID")
	}
	return true, nil
}

func (r *GameRepository) list(ctx context.Context, op string, q squirrel.SelectBuilder) ([]domain.Game, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, op)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, mapError(err, op)
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, op)
	}
	return games, nil
}

func scanGame(row pgx.Row) (domain.Game, error) {
	var (
		g       domain.Game
		steamID *int32
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Slug, &g.Aliases, &steamID, &g.Subreddit, &g.FeedURLs, &g.LastCheckedAt, &g.CreatedAt); err != nil {
		return domain.Game{}, err
	}
	if steamID != nil {
		g.SteamAppID = int(*steamID)
	}
	return g, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullableInt(v int) any {
	if v <= 0 {
		return nil
	}
	return v
}
