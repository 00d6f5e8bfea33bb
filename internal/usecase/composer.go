package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"PatchRadar/internal/classify"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
	"PatchRadar/pkg/kvtext"
)

const (
	titleLimit = 50
	bodyLimit  = 100
)

const composeFormat = `Write a push notification about %s for players of %s.
Reply with exactly two lines and nothing else:
TITLE: at most 50 characters
BODY: at most 100 characters`

var composeSubjects = map[domain.NotificationType]string{
	domain.NotificationPatch:   "a game patch; name the version and the most noticeable change",
	domain.NotificationNews:    "a piece of game news; lead with the key fact",
	domain.NotificationRelease: "a game release or launch; say what is now available",
}

// Draft is the user-independent text of a notification.
type Draft struct {
	Type  domain.NotificationType
	Title string
	Body  string
}

// Composer writes notification text and persists one notification per (user, content).
type Composer struct {
	completer ports.Completer
	notes     ports.NotificationRepository
	logger    *slog.Logger
}

// NewComposer wires the composer. A nil completer always uses the templates.
func NewComposer(completer ports.Completer, notes ports.NotificationRepository, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Composer{completer: completer, notes: notes, logger: logger}
}

// Compose drafts the text and persists the notification for userID.
func (c *Composer) Compose(ctx context.Context, userID uuid.UUID, item domain.ContentItem, gameName string, outcome domain.RuleOutcome) (domain.Notification, bool, error) {
	return c.Persist(ctx, userID, item, c.Draft(ctx, item, gameName), outcome)
}

// Draft asks the model for TITLE/BODY lines and truncates them to the hard limits.
// Any failure or missing key yields FallbackDraft.
func (c *Composer) Draft(ctx context.Context, item domain.ContentItem, gameName string) Draft {
	typ := NotificationTypeFor(item)
	fallback := FallbackDraft(typ, item, gameName)
	if c.completer == nil {
		return fallback
	}

	game := gameName
	if game == "" {
		game = "a tracked game"
	}
	summary := item.SummaryTLDR
	if summary == "" {
		summary = item.RawText
	}
	out, err := c.completer.Complete(ctx, fmt.Sprintf(composeFormat, composeSubjects[typ], game),
		"Title: "+item.Title+"\nSummary: "+truncateRunes(summary, 2000))
	if err != nil {
		c.logger.WarnContext(ctx, "compose fell back to template", "content_id", item.ID, "error", err)
		return fallback
	}

	fields := kvtext.Parse(out)
	title, okTitle := kvtext.Lookup(fields, "TITLE")
	body, okBody := kvtext.Lookup(fields, "BODY")
	if !okTitle || !okBody {
		c.logger.WarnContext(ctx, "compose output malformed, using template", "content_id", item.ID)
		return fallback
	}
	return Draft{Type: typ, Title: truncateRunes(title, titleLimit), Body: truncateRunes(body, bodyLimit)}
}

// Persist stores the notification unless the (user, content) pair already has one.
func (c *Composer) Persist(ctx context.Context, userID uuid.UUID, item domain.ContentItem, draft Draft, outcome domain.RuleOutcome) (domain.Notification, bool, error) {
	n, created, err := c.notes.CreateOnce(ctx, domain.Notification{
		ID:              uuid.New(),
		UserID:          userID,
		Type:            draft.Type,
		Title:           draft.Title,
		Body:            draft.Body,
		Priority:        outcome.Priority,
		LinkedContentID: item.ID,
	})
	if err != nil {
		return domain.Notification{}, false, fmt.Errorf("persist notification: %w", err)
	}
	return n, created, nil
}

// Pending drops the subscribers that already hold a notification for item.
func (c *Composer) Pending(ctx context.Context, item domain.ContentItem, subs []domain.Subscriber) ([]domain.Subscriber, error) {
	notified, err := c.notes.NotifiedUsers(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("notified users: %w", err)
	}
	if len(notified) == 0 {
		return subs, nil
	}
	pending := make([]domain.Subscriber, 0, len(subs))
	for _, sub := range subs {
		if !notified[sub.UserID] {
			pending = append(pending, sub)
		}
	}
	return pending, nil
}

// NotificationTypeFor picks the template family for an item.
func NotificationTypeFor(item domain.ContentItem) domain.NotificationType {
	if item.HasTag("release") || item.HasTag("launch") {
		return domain.NotificationRelease
	}
	if item.Kind == domain.KindNews {
		return domain.NotificationNews
	}
	return domain.NotificationPatch
}

// FallbackDraft is the deterministic template output for an item.
func FallbackDraft(typ domain.NotificationType, item domain.ContentItem, gameName string) Draft {
	game := strings.TrimSpace(gameName)
	if game == "" {
		game = "Your game"
	}

	var title string
	switch typ {
	case domain.NotificationRelease:
		title = game + " is out now"
	case domain.NotificationNews:
		title = game + ": " + strings.TrimSpace(item.Title)
	default:
		if v := classify.Version(item.Title); v != "" {
			title = game + " Patch " + v
		} else {
			title = game + " Update"
		}
	}

	body := strings.Join(strings.Fields(item.SummaryTLDR), " ")
	if body == "" {
		body = strings.Join(strings.Fields(item.Title), " ")
	}
	return Draft{Type: typ, Title: truncateRunes(title, titleLimit), Body: truncateRunes(body, bodyLimit)}
}
