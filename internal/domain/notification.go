package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType follows the content kind it was composed from.
type NotificationType string

const (
	NotificationPatch   NotificationType = "patch"
	NotificationNews    NotificationType = "news"
	NotificationRelease NotificationType = "release"
)

const (
	MinPriority = 1
	MaxPriority = 5
)

// Notification is the persisted in-app record; push delivery never mutates it.
type Notification struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Type            NotificationType
	Title           string
	Body            string
	Priority        int
	LinkedContentID uuid.UUID
	IsRead          bool
	CreatedAt       time.Time
}

// PushPayload is the channel-agnostic message handed to delivery channels.
type PushPayload struct {
	Title          string      `json:"title"`
	Body           string      `json:"body"`
	URL            string      `json:"url,omitempty"`
	NotificationID uuid.UUID   `json:"notificationId"`
	ContentIDs     []uuid.UUID `json:"contentIds"`
	Priority       int         `json:"priority"`
}
