package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
)

// GameRepository stores the tracked game catalog.
type GameRepository interface {
	ListForScan(ctx context.Context, limit int) ([]domain.Game, error)
	ListAll(ctx context.Context) ([]domain.Game, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Game, error)
	MarkChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error
	UpsertBySteamAppID(ctx context.Context, game domain.Game) (created bool, err error)
}

// ContentRepository persists admitted content and its enrichment results.
type ContentRepository interface {
	ExistsBySourceURL(ctx context.Context, kind domain.ContentKind, sourceURL string) (bool, error)
	RecentTitles(ctx context.Context, gameID uuid.UUID, kind domain.ContentKind, limit int) ([]string, error)
	// CreateWithJob inserts the item and its single enrichment job atomically.
	// A unique-constraint race returns domain.ErrAlreadyExists and leaves no trace.
	CreateWithJob(ctx context.Context, item domain.ContentItem, jobKind domain.JobKind) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (domain.ContentItem, error)
	ApplyEnrichment(ctx context.Context, id uuid.UUID, summary domain.Summary, status domain.EnrichmentStatus, at time.Time) error
	ListEnrichedSince(ctx context.Context, since time.Time) ([]domain.ContentItem, error)
	PreviousPatchAt(ctx context.Context, gameID uuid.UUID, before time.Time) (*time.Time, error)
}

// JobRepository is the durable enrichment work queue.
type JobRepository interface {
	// ClaimPending atomically moves up to limit pending jobs to processing.
	ClaimPending(ctx context.Context, limit int) ([]domain.EnrichmentJob, error)
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail records the error and returns the resulting status (pending or failed).
	Fail(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) (domain.JobStatus, error)
	ResetStale(ctx context.Context, before time.Time) (int, error)
	CountByTarget(ctx context.Context, targetID uuid.UUID) (int, error)
}

// SubscriberRepository resolves users interested in a game along with their rules.
type SubscriberRepository interface {
	ListSubscribers(ctx context.Context, gameID uuid.UUID) ([]domain.Subscriber, error)
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	// CreateOnce inserts n unless a notification for (UserID, LinkedContentID) exists,
	// in which case the stored one is returned with created=false.
	CreateOnce(ctx context.Context, n domain.Notification) (stored domain.Notification, created bool, err error)
	// NotifiedUsers returns the users that already hold a notification for contentID.
	NotifiedUsers(ctx context.Context, contentID uuid.UUID) (map[uuid.UUID]bool, error)
	DeleteReadBefore(ctx context.Context, before time.Time) (int, error)
}

// EndpointRepository stores delivery endpoints.
type EndpointRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Endpoint, error)
	Delete(ctx context.Context, endpoint domain.Endpoint) error
}

// Completer is a single request/response call to a text generation model.
type Completer interface {
	Complete(ctx context.Context, instruction, input string) (string, error)
}

// Summarizer produces TL;DR, tags and impact score for raw content text.
type Summarizer interface {
	Summarize(ctx context.Context, kind domain.JobKind, title, text string) (domain.Summary, error)
}

// Channel delivers a payload to one endpoint over one protocol.
type Channel interface {
	Kind() domain.EndpointKind
	Send(ctx context.Context, endpoint domain.Endpoint, payload domain.PushPayload) domain.DeliveryOutcome
}

// CandidateSource runs the configured source adapters.
type CandidateSource interface {
	FetchGames(ctx context.Context, games []domain.Game, since time.Time) ([]domain.CandidateRecord, error)
	FetchSites(ctx context.Context, since time.Time) ([]domain.CandidateRecord, error)
}

// GameDirectory lists popular games upstream for discovery.
type GameDirectory interface {
	TopGames(ctx context.Context, limit int) ([]domain.Game, error)
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Metrics records operational counters. Implementations are safe for concurrent use.
type Metrics interface {
	ObserveTask(task string, elapsed time.Duration, err error)
	CountAdmission(reason string)
	CountEnrichment(status domain.JobStatus)
	CountDelivery(kind domain.EndpointKind, status domain.DeliveryStatus)
}
