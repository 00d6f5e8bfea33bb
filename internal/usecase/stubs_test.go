package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
)

func testIngestionConfig() config.IngestionConfig {
	return config.IngestionConfig{
		Concurrency:    2,
		CycleBudget:    time.Minute,
		ItemTimeout:    time.Second,
		Lookback:       7 * 24 * time.Hour,
		MinBodyLength:  map[string]int{"structured": 50, "forum": 20, "syndication": 30},
		FuzzyPrefix:    50,
		RecentTitles:   50,
		GamesPerCycle:  100,
		MaxItemsPerRun: 1000,
	}
}

type stubSource struct {
	mu      sync.Mutex
	byGame  map[uuid.UUID][]domain.CandidateRecord
	sites   []domain.CandidateRecord
	batches [][]uuid.UUID
	onFetch func()
}

func (s *stubSource) FetchGames(_ context.Context, games []domain.Game, _ time.Time) ([]domain.CandidateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, len(games))
	var out []domain.CandidateRecord
	for i, g := range games {
		ids[i] = g.ID
		out = append(out, s.byGame[g.ID]...)
	}
	s.batches = append(s.batches, ids)
	if s.onFetch != nil {
		s.onFetch()
	}
	return out, nil
}

func (s *stubSource) FetchSites(context.Context, time.Time) ([]domain.CandidateRecord, error) {
	return s.sites, nil
}

type summarizeFunc func(ctx context.Context, kind domain.JobKind, title, text string) (domain.Summary, error)

func (f summarizeFunc) Summarize(ctx context.Context, kind domain.JobKind, title, text string) (domain.Summary, error) {
	return f(ctx, kind, title, text)
}

type completeFunc func(ctx context.Context, instruction, input string) (string, error)

func (f completeFunc) Complete(ctx context.Context, instruction, input string) (string, error) {
	return f(ctx, instruction, input)
}

type stubChannel struct {
	kind domain.EndpointKind
	// outcome by endpoint token or URL; missing means delivered.
	outcomes map[string]domain.DeliveryStatus

	mu   sync.Mutex
	sent []domain.PushPayload
	to   []uuid.UUID
}

func (c *stubChannel) Kind() domain.EndpointKind { return c.kind }

func (c *stubChannel) Send(_ context.Context, e domain.Endpoint, p domain.PushPayload) domain.DeliveryOutcome {
	c.mu.Lock()
	c.sent = append(c.sent, p)
	c.to = append(c.to, e.ID)
	c.mu.Unlock()

	key := e.URL
	if e.Kind == domain.EndpointNative {
		key = e.Token
	}
	status, ok := c.outcomes[key]
	if !ok {
		status = domain.DeliveryDelivered
	}
	out := domain.DeliveryOutcome{Status: status}
	if status == domain.DeliveryDead {
		out.StatusCode = 410
		out.Err = domain.ErrDeadEndpoint
	}
	return out
}

func (c *stubChannel) payloads() []domain.PushPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PushPayload(nil), c.sent...)
}
