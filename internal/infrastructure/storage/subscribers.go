package storage

import (
	"context"
	"encoding/json"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// Followers of the game plus users whose rules reach it without a follow.
const subscribersQuery = `
	SELECT u.user_id,
	       EXISTS(SELECT 1 FROM follows f WHERE f.user_id = u.user_id AND f.game_id = $1) AS following
	FROM (
		SELECT user_id FROM follows WHERE game_id = $1
		UNION
		SELECT user_id FROM alert_rules
		WHERE enabled AND (applies_to = 'all' OR (applies_to = 'specific' AND $1 = ANY(game_ids)))
	) u
	ORDER BY u.user_id`

// SubscriberRepository resolves users interested in a game together with their rules.
type SubscriberRepository struct {
	db DB
}

var _ ports.SubscriberRepository = (*SubscriberRepository)(nil)

// NewSubscriberRepository wires a pool.
func NewSubscriberRepository(db DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// ListSubscribers returns every interested user with all of their rules.
func (r *SubscriberRepository) ListSubscribers(ctx context.Context, gameID uuid.UUID) ([]domain.Subscriber, error) {
	rows, err := r.db.Query(ctx, subscribersQuery, gameID)
	if err != nil {
		return nil, mapError(err, "subscribers.List")
	}
	defer rows.Close()

	var (
		subs  []domain.Subscriber
		index = map[uuid.UUID]int{}
		ids   []uuid.UUID
	)
	for rows.Next() {
		var (
			userID    uuid.UUID
			following bool
		)
		if err := rows.Scan(&userID, &following); err != nil {
			return nil, mapError(err, "subscribers.List")
		}
		sub := domain.Subscriber{UserID: userID}
		if following {
			sub.Followed = []uuid.UUID{gameID}
		}
		index[userID] = len(subs)
		subs = append(subs, sub)
		ids = append(ids, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "subscribers.List")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rules, err := r.rulesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if i, ok := index[rule.UserID]; ok {
			subs[i].Rules = append(subs[i].Rules, rule)
		}
	}
	return subs, nil
}

func (r *SubscriberRepository) rulesFor(ctx context.Context, userIDs []uuid.UUID) ([]domain.AlertRule, error) {
	query, args, err := psql.Select("id", "user_id", "rule_type", "applies_to", "game_ids", "thresholds",
		"priority_boost", "force_push", "enabled").
		From("alert_rules").
		Where(squirrel.Eq{"user_id": userIDs}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, mapError(err, "subscribers.rules: build query")
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "subscribers.rules")
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var (
			rule              domain.AlertRule
			ruleType, applies string
			thresholds        []byte
		)
		if err := rows.Scan(&rule.ID, &rule.UserID, &ruleType, &applies, &rule.GameIDs, &thresholds,
			&rule.PriorityBoost, &rule.ForcePush, &rule.Enabled); err != nil {
			return nil, mapError(err, "subscribers.rules")
		}
		rule.Type = domain.RuleType(ruleType)
		rule.AppliesTo = domain.Scope(applies)
		rule.Thresholds = json.RawMessage(thresholds)
		rules = append(rules, rule)
	}
	return rules, mapError(rows.Err(), "subscribers.rules")
}
