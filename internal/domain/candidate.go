package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the external feed family a candidate came from.
type SourceType string

const (
	SourceStructured  SourceType = "structured"
	SourceForum       SourceType = "forum"
	SourceSyndication SourceType = "syndication"
)

// CandidateRecord is unvalidated content pulled from an upstream feed.
// It is never persisted directly.
type CandidateRecord struct {
	Kind        ContentKind
	SourceType  SourceType
	SourceName  string
	SourceURL   string
	Title       string
	RawText     string
	PublishedAt time.Time
	// GameID is set when the adapter scanned on behalf of a known game.
	GameID uuid.UUID
	// GameRef carries a free-form game name when GameID is unknown.
	GameRef string
}
