package domain

import (
	"time"

	"github.com/google/uuid"
)

// Game is a tracked title together with the upstream references used to scan it.
type Game struct {
	ID            uuid.UUID
	Name          string
	Slug          string
	Aliases       []string
	SteamAppID    int
	Subreddit     string
	FeedURLs      []string
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}
