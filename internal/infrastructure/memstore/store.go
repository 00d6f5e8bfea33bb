// Package memstore is an in-process record store implementing every repository
// port. It backs the "memory" storage driver and the use case tests; uniqueness
// rules mirror the PostgreSQL schema so losing a race behaves the same way.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

type contentKey struct {
	kind domain.ContentKind
	url  string
}

type pairKey struct {
	user    uuid.UUID
	content uuid.UUID
}

// Store keeps all records behind one mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	games        map[uuid.UUID]domain.Game
	content      map[uuid.UUID]domain.ContentItem
	contentByURL map[contentKey]uuid.UUID
	jobs         []domain.EnrichmentJob
	jobByTarget  map[uuid.UUID]int
	follows      map[uuid.UUID]map[uuid.UUID]bool
	rules        []domain.AlertRule
	notes        []domain.Notification
	noteByPair   map[pairKey]int
	endpoints    []domain.Endpoint
}

// Repository views over one Store; each satisfies a single port.
type (
	GameRepo         struct{ *Store }
	ContentRepo      struct{ *Store }
	JobRepo          struct{ *Store }
	SubscriberRepo   struct{ *Store }
	NotificationRepo struct{ *Store }
	EndpointRepo     struct{ *Store }
)

var (
	_ ports.GameRepository         = GameRepo{}
	_ ports.ContentRepository      = ContentRepo{}
	_ ports.JobRepository          = JobRepo{}
	_ ports.SubscriberRepository   = SubscriberRepo{}
	_ ports.NotificationRepository = NotificationRepo{}
	_ ports.EndpointRepository     = EndpointRepo{}
)

// New returns an empty store using the wall clock.
func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		games:        map[uuid.UUID]domain.Game{},
		content:      map[uuid.UUID]domain.ContentItem{},
		contentByURL: map[contentKey]uuid.UUID{},
		jobByTarget:  map[uuid.UUID]int{},
		follows:      map[uuid.UUID]map[uuid.UUID]bool{},
		noteByPair:   map[pairKey]int{},
	}
}

func (s *Store) Games() GameRepo                 { return GameRepo{s} }
func (s *Store) Contents() ContentRepo           { return ContentRepo{s} }
func (s *Store) Jobs() JobRepo                   { return JobRepo{s} }
func (s *Store) Subscribers() SubscriberRepo     { return SubscriberRepo{s} }
func (s *Store) Notifications() NotificationRepo { return NotificationRepo{s} }
func (s *Store) Endpoints() EndpointRepo         { return EndpointRepo{s} }

// SetClock replaces the timestamp source used for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ---- games ----

// AddGame inserts or replaces a game.
func (s *Store) AddGame(g domain.Game) domain.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	s.games[g.ID] = g
	return g
}

func (s GameRepo) ListForScan(_ context.Context, limit int) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := s.sortedGames()
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i].LastCheckedAt, games[j].LastCheckedAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	if limit > 0 && len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

func (s GameRepo) ListAll(_ context.Context) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedGames(), nil
}

func (s GameRepo) Get(_ context.Context, id uuid.UUID) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return domain.Game{}, fmt.Errorf("memstore.games.Get %s: %w", id, domain.ErrNotFound)
	}
	return g, nil
}

func (s GameRepo) MarkChecked(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		g, ok := s.games[id]
		if !ok {
			continue
		}
		stamp := at
		g.LastCheckedAt = &stamp
		s.games[id] = g
	}
	return nil
}

func (s GameRepo) UpsertBySteamAppID(_ context.Context, game domain.Game) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.Slug == game.Slug || (game.SteamAppID > 0 && g.SteamAppID == game.SteamAppID) {
			return false, nil
		}
	}
	if game.ID == uuid.Nil {
		game.ID = uuid.New()
	}
	game.CreatedAt = s.now()
	s.games[game.ID] = game
	return true, nil
}

func (s *Store) sortedGames() []domain.Game {
	games := make([]domain.Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games
}

// ---- content ----

func (s ContentRepo) ExistsBySourceURL(_ context.Context, kind domain.ContentKind, sourceURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contentByURL[contentKey{kind, sourceURL}]
	return ok, nil
}

func (s ContentRepo) RecentTitles(_ context.Context, gameID uuid.UUID, kind domain.ContentKind, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ContentItem
	for _, c := range s.content {
		if c.GameID == gameID && c.Kind == kind {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PublishedAt.After(items[j].PublishedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	titles := make([]string, len(items))
	for i, c := range items {
		titles[i] = c.Title
	}
	return titles, nil
}

func (s ContentRepo) CreateWithJob(_ context.Context, item domain.ContentItem, jobKind domain.JobKind) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contentKey{item.Kind, item.SourceURL}
	if _, taken := s.contentByURL[key]; taken {
		return uuid.Nil, fmt.Errorf("memstore.content.CreateWithJob %s: %w", item.SourceURL, domain.ErrAlreadyExists)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if _, taken := s.jobByTarget[item.ID]; taken {
		return uuid.Nil, fmt.Errorf("memstore.content.CreateWithJob job for %s: %w", item.ID, domain.ErrAlreadyExists)
	}
	if item.EnrichmentStatus == "" {
		item.EnrichmentStatus = domain.EnrichmentPending
	}
	now := s.now()
	item.CreatedAt = now
	item.Tags = append([]string(nil), item.Tags...)

	s.content[item.ID] = item
	s.contentByURL[key] = item.ID
	s.jobByTarget[item.ID] = len(s.jobs)
	s.jobs = append(s.jobs, domain.EnrichmentJob{
		ID:        uuid.New(),
		Kind:      jobKind,
		TargetID:  item.ID,
		Status:    domain.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return item.ID, nil
}

func (s ContentRepo) Get(_ context.Context, id uuid.UUID) (domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.content[id]
	if !ok {
		return domain.ContentItem{}, fmt.Errorf("memstore.content.Get %s: %w", id, domain.ErrNotFound)
	}
	return item, nil
}

func (s ContentRepo) ApplyEnrichment(_ context.Context, id uuid.UUID, summary domain.Summary, status domain.EnrichmentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.content[id]
	if !ok {
		return fmt.Errorf("memstore.content.ApplyEnrichment %s: %w", id, domain.ErrNotFound)
	}
	stamp := at
	item.SummaryTLDR = summary.TLDR
	item.Tags = append([]string(nil), summary.Tags...)
	item.ImpactScore = domain.ClampImpact(summary.ImpactScore)
	item.EnrichmentStatus = status
	item.EnrichedAt = &stamp
	s.content[id] = item
	return nil
}

func (s ContentRepo) ListEnrichedSince(_ context.Context, since time.Time) ([]domain.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.ContentItem
	for _, c := range s.content {
		if c.EnrichmentStatus == domain.EnrichmentPending || c.EnrichedAt == nil {
			continue
		}
		if c.EnrichedAt.Before(since) {
			continue
		}
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].EnrichedAt.Before(*items[j].EnrichedAt) })
	return items, nil
}

func (s ContentRepo) PreviousPatchAt(_ context.Context, gameID uuid.UUID, before time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for _, c := range s.content {
		if c.GameID != gameID || c.Kind != domain.KindPatch || !c.PublishedAt.Before(before) {
			continue
		}
		if latest == nil || c.PublishedAt.After(*latest) {
			at := c.PublishedAt
			latest = &at
		}
	}
	return latest, nil
}

// AllContent returns every stored item ordered by creation.
func (s *Store) AllContent() []domain.ContentItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.ContentItem, 0, len(s.content))
	for _, c := range s.content {
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}

// ---- jobs ----

func (s JobRepo) ClaimPending(_ context.Context, limit int) ([]domain.EnrichmentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var claimed []domain.EnrichmentJob
	for i := range s.jobs {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		if s.jobs[i].Status != domain.JobPending {
			continue
		}
		s.jobs[i].Status = domain.JobProcessing
		s.jobs[i].UpdatedAt = now
		claimed = append(claimed, s.jobs[i])
	}
	return claimed, nil
}

func (s JobRepo) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.processingJob(id)
	if !ok {
		return fmt.Errorf("memstore.jobs.Complete %s: %w", id, domain.ErrNotFound)
	}
	s.jobs[i].Status = domain.JobCompleted
	s.jobs[i].UpdatedAt = s.now()
	return nil
}

func (s JobRepo) Fail(_ context.Context, id uuid.UUID, lastError string, maxAttempts int) (domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.processingJob(id)
	if !ok {
		return "", fmt.Errorf("memstore.jobs.Fail %s: %w", id, domain.ErrNotFound)
	}
	job := &s.jobs[i]
	job.Attempts++
	job.LastError = lastError
	job.UpdatedAt = s.now()
	if job.Attempts >= maxAttempts {
		job.Status = domain.JobFailed
	} else {
		job.Status = domain.JobPending
	}
	return job.Status, nil
}

func (s JobRepo) ResetStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.jobs {
		if s.jobs[i].Status == domain.JobProcessing && s.jobs[i].UpdatedAt.Before(before) {
			s.jobs[i].Status = domain.JobPending
			s.jobs[i].UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

func (s JobRepo) CountByTarget(_ context.Context, targetID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.TargetID == targetID {
			n++
		}
	}
	return n, nil
}

// AllJobs returns a snapshot of the queue in creation order.
func (s *Store) AllJobs() []domain.EnrichmentJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EnrichmentJob(nil), s.jobs...)
}

func (s *Store) processingJob(id uuid.UUID) (int, bool) {
	for i, j := range s.jobs {
		if j.ID == id {
			return i, j.Status == domain.JobProcessing
		}
	}
	return 0, false
}

// ---- subscribers ----

// Follow records that user follows game.
func (s *Store) Follow(userID, gameID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[userID] == nil {
		s.follows[userID] = map[uuid.UUID]bool{}
	}
	s.follows[userID][gameID] = true
}

// AddRule stores an alert rule.
func (s *Store) AddRule(rule domain.AlertRule) domain.AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	s.rules = append(s.rules, rule)
	return rule
}

func (s SubscriberRepo) ListSubscribers(_ context.Context, gameID uuid.UUID) ([]domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	interested := map[uuid.UUID]bool{}
	for userID, games := range s.follows {
		if games[gameID] {
			interested[userID] = true
		}
	}
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		if r.AppliesTo == domain.ScopeAll || (r.AppliesTo == domain.ScopeSpecific && containsID(r.GameIDs, gameID)) {
			interested[r.UserID] = true
		}
	}

	subs := make([]domain.Subscriber, 0, len(interested))
	for userID := range interested {
		sub := domain.Subscriber{UserID: userID}
		if s.follows[userID][gameID] {
			sub.Followed = []uuid.UUID{gameID}
		}
		for _, r := range s.rules {
			if r.UserID == userID {
				sub.Rules = append(sub.Rules, r)
			}
		}
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return bytes.Compare(subs[i].UserID[:], subs[j].UserID[:]) < 0 })
	return subs, nil
}

// ---- notifications ----

func (s NotificationRepo) CreateOnce(_ context.Context, n domain.Notification) (domain.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{n.UserID, n.LinkedContentID}
	if i, ok := s.noteByPair[key]; ok {
		return s.notes[i], false, nil
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = s.now()
	s.noteByPair[key] = len(s.notes)
	s.notes = append(s.notes, n)
	return n, true, nil
}

func (s NotificationRepo) NotifiedUsers(_ context.Context, contentID uuid.UUID) (map[uuid.UUID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := map[uuid.UUID]bool{}
	for _, n := range s.notes {
		if n.LinkedContentID == contentID {
			users[n.UserID] = true
		}
	}
	return users, nil
}

func (s NotificationRepo) DeleteReadBefore(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.notes[:0:0]
	deleted := 0
	for _, n := range s.notes {
		if n.IsRead && n.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	s.notes = kept
	s.noteByPair = make(map[pairKey]int, len(kept))
	for i, n := range kept {
		s.noteByPair[pairKey{n.UserID, n.LinkedContentID}] = i
	}
	return deleted, nil
}

// NotificationsFor returns the stored notifications of a user.
func (s *Store) NotificationsFor(userID uuid.UUID) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// MarkRead flags a notification as read.
func (s *Store) MarkRead(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes[i].IsRead = true
		}
	}
}

// ---- endpoints ----

// AddEndpoint registers a delivery endpoint. Web URLs and native tokens are unique.
func (s *Store) AddEndpoint(e domain.Endpoint) (domain.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.endpoints {
		if existing.Kind != e.Kind {
			continue
		}
		if (e.Kind == domain.EndpointWeb && strings.EqualFold(existing.URL, e.URL)) ||
			(e.Kind == domain.EndpointNative && existing.Token == e.Token) {
			return domain.Endpoint{}, fmt.Errorf("memstore.endpoints.Add: %w", domain.ErrAlreadyExists)
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = s.now()
	s.endpoints = append(s.endpoints, e)
	return e, nil
}

func (s EndpointRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var web, native []domain.Endpoint
	for _, e := range s.endpoints {
		if e.UserID != userID {
			continue
		}
		if e.Kind == domain.EndpointNative {
			native = append(native, e)
		} else {
			web = append(web, e)
		}
	}
	return append(web, native...), nil
}

func (s EndpointRepo) Delete(_ context.Context, endpoint domain.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.endpoints {
		if e.ID == endpoint.ID {
			s.endpoints = append(s.endpoints[:i], s.endpoints[i+1:]...)
			return nil
		}
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
