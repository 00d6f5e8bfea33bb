package storage

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// EndpointRepository reads and prunes web push subscriptions and device tokens.
type EndpointRepository struct {
	db DB
}

var _ ports.EndpointRepository = (*EndpointRepository)(nil)

// NewEndpointRepository wires a pool.
func NewEndpointRepository(db DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

// ListByUser returns web endpoints followed by native tokens.
func (r *EndpointRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Endpoint, error) {
	web, err := r.listWeb(ctx, userID)
	if err != nil {
		return nil, err
	}
	native, err := r.listNative(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append(web, native...), nil
}

// Delete removes a dead endpoint from its table.
func (r *EndpointRepository) Delete(ctx context.Context, endpoint domain.Endpoint) error {
	table := "web_push_endpoints"
	if endpoint.Kind == domain.EndpointNative {
		table = "device_tokens"
	}
	_, err := exec(ctx, r.db, "endpoints.Delete", psql.Delete(table).Where(squirrel.Eq{"id": endpoint.ID}))
	return err
}

func (r *EndpointRepository) listWeb(ctx context.Context, userID uuid.UUID) ([]domain.Endpoint, error) {
	query, args, err := psql.Select("id", "user_id", "endpoint", "p256dh", "auth", "created_at").
		From("web_push_endpoints").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("endpoints.listWeb: build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "endpoints.listWeb")
	}
	defer rows.Close()

	var out []domain.Endpoint
	for rows.Next() {
		e := domain.Endpoint{Kind: domain.EndpointWeb}
		if err := rows.Scan(&e.ID, &e.UserID, &e.URL, &e.P256dh, &e.Auth, &e.CreatedAt); err != nil {
			return nil, mapError(err, "endpoints.listWeb")
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "endpoints.listWeb")
}

func (r *EndpointRepository) listNative(ctx context.Context, userID uuid.UUID) ([]domain.Endpoint, error) {
	query, args, err := psql.Select("id", "user_id", "token", "platform", "created_at").
		From("device_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("endpoints.listNative: build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "endpoints.listNative")
	}
	defer rows.Close()

	var out []domain.Endpoint
	for rows.Next() {
		e := domain.Endpoint{Kind: domain.EndpointNative}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Token, &e.Platform, &e.CreatedAt); err != nil {
			return nil, mapError(err, "endpoints.listNative")
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "endpoints.listNative")
}
