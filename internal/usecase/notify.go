package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
	"PatchRadar/internal/rules"
)

// NotifyReport summarizes one notification pass.
type NotifyReport struct {
	Items      int            `json:"items"`
	Evaluated  int            `json:"evaluated"`
	Created    int            `json:"created"`
	Duplicates int            `json:"duplicates"`
	Pushed     int            `json:"pushed"`
	Delivery   DeliveryReport `json:"delivery"`
}

// NotifyDeps groups the collaborators of the notification processor.
type NotifyDeps struct {
	Content     ports.ContentRepository
	Games       ports.GameRepository
	Subscribers ports.SubscriberRepository
	Endpoints   ports.EndpointRepository
	Engine      *rules.Engine
	Composer    *Composer
	Dispatcher  *Dispatcher
	Config      config.NotificationConfig
	Logger      *slog.Logger
}

// NotificationProcessor turns freshly enriched content into notifications and pushes.
type NotificationProcessor struct {
	content     ports.ContentRepository
	games       ports.GameRepository
	subscribers ports.SubscriberRepository
	endpoints   ports.EndpointRepository
	engine      *rules.Engine
	composer    *Composer
	dispatcher  *Dispatcher
	cfg         config.NotificationConfig
	logger      *slog.Logger
}

// NewNotificationProcessor wires the processor.
func NewNotificationProcessor(deps NotifyDeps) *NotificationProcessor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine := deps.Engine
	if engine == nil {
		engine = rules.NewEngine(logger)
	}
	return &NotificationProcessor{
		content:     deps.Content,
		games:       deps.Games,
		subscribers: deps.Subscribers,
		endpoints:   deps.Endpoints,
		engine:      engine,
		composer:    deps.Composer,
		dispatcher:  deps.Dispatcher,
		cfg:         deps.Config,
		logger:      logger,
	}
}

type pushCandidate struct {
	notification domain.Notification
	forcePush    bool
	publishedAt  time.Time
}

// beats orders candidates by priority, then by the most recent content.
func (c pushCandidate) beats(other pushCandidate) bool {
	if c.notification.Priority != other.notification.Priority {
		return c.notification.Priority > other.notification.Priority
	}
	if !c.publishedAt.Equal(other.publishedAt) {
		return c.publishedAt.After(other.publishedAt)
	}
	return c.notification.CreatedAt.After(other.notification.CreatedAt)
}

// Process evaluates content enriched within the lookback window. Every newly created
// notification stays in-app; only each user's best one is pushed, and only when its
// priority reaches the push threshold or a rule forces it.
func (p *NotificationProcessor) Process(ctx context.Context, now time.Time) (NotifyReport, error) {
	var report NotifyReport

	items, err := p.content.ListEnrichedSince(ctx, now.Add(-p.cfg.Lookback))
	if err != nil {
		return report, fmt.Errorf("list enriched content: %w", err)
	}
	report.Items = len(items)

	best := map[uuid.UUID]pushCandidate{}
	names := map[uuid.UUID]string{}

	for _, item := range items {
		subs, err := p.subscribers.ListSubscribers(ctx, item.GameID)
		if err != nil {
			p.logger.WarnContext(ctx, "subscribers unavailable", "game_id", item.GameID, "error", err)
			continue
		}
		pending, err := p.composer.Pending(ctx, item, subs)
		if err != nil {
			p.logger.WarnContext(ctx, "notification lookup failed", "content_id", item.ID, "error", err)
			continue
		}
		report.Duplicates += len(subs) - len(pending)
		if len(pending) == 0 {
			continue
		}

		activity := rules.Activity{Now: now}
		if item.Kind == domain.KindPatch {
			prev, err := p.content.PreviousPatchAt(ctx, item.GameID, item.PublishedAt)
			if err != nil {
				p.logger.WarnContext(ctx, "previous patch lookup failed", "game_id", item.GameID, "error", err)
			}
			activity.PreviousPatchAt = prev
		}

		draft := p.composer.Draft(ctx, item, p.gameName(ctx, names, item.GameID))
		for _, sub := range pending {
			outcome := p.engine.Evaluate(sub, item, activity)
			report.Evaluated++

			n, created, err := p.composer.Persist(ctx, sub.UserID, item, draft, outcome)
			if err != nil {
				p.logger.ErrorContext(ctx, "notification not stored", "user_id", sub.UserID, "content_id", item.ID, "error", err)
				continue
			}
			if !created {
				report.Duplicates++
				continue
			}
			report.Created++

			candidate := pushCandidate{notification: n, forcePush: outcome.ForcePush, publishedAt: item.PublishedAt}
			current, seen := best[sub.UserID]
			if !seen || candidate.beats(current) {
				best[sub.UserID] = candidate
			}
		}
	}

	for userID, candidate := range best {
		if candidate.notification.Priority < p.cfg.MinPushPriority && !candidate.forcePush {
			continue
		}
		endpoints, err := p.endpoints.ListByUser(ctx, userID)
		if err != nil {
			p.logger.WarnContext(ctx, "endpoints unavailable", "user_id", userID, "error", err)
			continue
		}
		if len(endpoints) == 0 {
			continue
		}
		report.Pushed++
		report.Delivery.add(p.dispatcher.Dispatch(ctx, candidate.notification, endpoints))
	}

	p.logger.InfoContext(ctx, "notifications processed",
		"items", report.Items,
		"created", report.Created,
		"pushed", report.Pushed,
		"pruned", report.Delivery.Pruned)
	return report, nil
}

func (p *NotificationProcessor) gameName(ctx context.Context, cache map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := cache[id]; ok {
		return name
	}
	game, err := p.games.Get(ctx, id)
	if err != nil {
		p.logger.WarnContext(ctx, "game lookup failed", "game_id", id, "error", err)
	}
	cache[id] = game.Name
	return game.Name
}
