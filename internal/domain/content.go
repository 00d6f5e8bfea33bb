package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentKind separates patches from news; source URLs are unique per kind.
type ContentKind string

const (
	KindPatch ContentKind = "patch"
	KindNews  ContentKind = "news"
)

// EnrichmentStatus mirrors the lifecycle of the item's enrichment job.
type EnrichmentStatus string

const (
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentCompleted EnrichmentStatus = "completed"
	EnrichmentFailed    EnrichmentStatus = "failed"
)

const (
	MinImpactScore     = 0
	MaxImpactScore     = 10
	DefaultImpactScore = 5
)

// ContentItem is a persisted patch or news entry admitted by the ingestion gate.
type ContentItem struct {
	ID               uuid.UUID
	Kind             ContentKind
	GameID           uuid.UUID
	Title            string
	SourceType       SourceType
	SourceName       string
	SourceURL        string
	RawText          string
	PublishedAt      time.Time
	SummaryTLDR      string
	Tags             []string
	ImpactScore      int
	EnrichmentStatus EnrichmentStatus
	EnrichedAt       *time.Time
	CreatedAt        time.Time
}

// HasTag reports whether the item carries tag. Tags are stored lower-cased.
func (c ContentItem) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Summary is the output of the external summarization function.
type Summary struct {
	TLDR        string
	Tags        []string
	ImpactScore int
}

// ClampImpact keeps a score inside the 0..10 range.
func ClampImpact(score int) int {
	if score < MinImpactScore {
		return MinImpactScore
	}
	if score > MaxImpactScore {
		return MaxImpactScore
	}
	return score
}
