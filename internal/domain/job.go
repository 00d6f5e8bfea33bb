package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind selects the summarization flavour.
type JobKind string

const (
	JobPatchSummary JobKind = "PATCH_SUMMARY"
	JobNewsSummary  JobKind = "NEWS_SUMMARY"
)

// JobKindFor maps a content kind to its enrichment job kind.
func JobKindFor(kind ContentKind) JobKind {
	if kind == KindNews {
		return JobNewsSummary
	}
	return JobPatchSummary
}

// JobStatus enumerates enrichment job states.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// EnrichmentJob is a durable work item referencing one content item.
type EnrichmentJob struct {
	ID        uuid.UUID
	Kind      JobKind
	TargetID  uuid.UUID
	Status    JobStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether no further transitions are allowed.
func (j EnrichmentJob) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
