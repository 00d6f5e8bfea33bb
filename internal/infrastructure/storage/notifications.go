package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

var notificationColumns = []string{
	"id", "user_id", "type", "title", "body", "priority", "linked_content_id", "is_read", "created_at",
}

// NotificationRepository persists in-app notifications.
type NotificationRepository struct {
	db DB
}

var _ ports.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository wires a pool.
func NewNotificationRepository(db DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateOnce inserts n unless the (user, content) pair already has a notification,
// in which case the stored row is returned with created=false.
func (r *NotificationRepository) CreateOnce(ctx context.Context, n domain.Notification) (domain.Notification, bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query, args, err := psql.Insert("notifications").
		Columns("id", "user_id", "type", "title", "body", "priority", "linked_content_id", "is_read").
		Values(n.ID, n.UserID, string(n.Type), n.Title, n.Body, n.Priority, n.LinkedContentID, n.IsRead).
		Suffix("ON CONFLICT (user_id, linked_content_id) DO NOTHING RETURNING " + strings.Join(notificationColumns, ", ")).
		ToSql()
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("notifications.CreateOnce: build query: %w", err)
	}

	stored, err := scanNotification(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Notification{}, false, mapError(err, "notifications.CreateOnce")
	}

	query, args, err = psql.Select(notificationColumns...).From("notifications").
		Where(squirrel.Eq{"user_id": n.UserID, "linked_content_id": n.LinkedContentID}).
		ToSql()
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("notifications.CreateOnce: build query: %w", err)
	}
	stored, err = scanNotification(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Notification{}, false, mapError(err, "notifications.CreateOnce: load existing")
	}
	return stored, false, nil
}

// NotifiedUsers returns the users that already hold a notification for contentID.
func (r *NotificationRepository) NotifiedUsers(ctx context.Context, contentID uuid.UUID) (map[uuid.UUID]bool, error) {
	query, args, err := psql.Select("user_id").From("notifications").
		Where(squirrel.Eq{"linked_content_id": contentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("notifications.NotifiedUsers: build query: %w", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "notifications.NotifiedUsers")
	}
	defer rows.Close()

	users := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err, "notifications.NotifiedUsers")
		}
		users[id] = true
	}
	return users, mapError(rows.Err(), "notifications.NotifiedUsers")
}

// DeleteReadBefore removes read notifications created before the cutoff.
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int, error) {
	n, err := exec(ctx, r.db, "notifications.DeleteReadBefore", psql.Delete("notifications").
		Where(squirrel.Eq{"is_read": true}).
		Where(squirrel.Lt{"created_at": before}))
	return int(n), err
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var (
		n   domain.Notification
		typ string
	)
	if err := row.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.Priority, &n.LinkedContentID, &n.IsRead, &n.CreatedAt); err != nil {
		return domain.Notification{}, err
	}
	n.Type = domain.NotificationType(typ)
	return n, nil
}
