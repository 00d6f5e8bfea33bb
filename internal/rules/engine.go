package rules

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
)

// ActivityState describes a game's recent patch cadence.
type ActivityState string

const (
	ActivityFirst       ActivityState = "first"
	ActivityActive      ActivityState = "active"
	ActivityResurfacing ActivityState = "resurfacing"
)

// DefaultSilenceDays is the gap that turns a patch into a resurfacing event.
const DefaultSilenceDays = 90

// Activity is the game context a rule may need beyond the item itself.
type Activity struct {
	Now             time.Time
	PreviousPatchAt *time.Time
}

// ClassifyActivity labels a patch published at publishedAt given the game's previous
// patch. Resurfacing takes precedence: a patch after a gap of at least silenceDays
// is never also counted as active, however recent it is.
func ClassifyActivity(publishedAt time.Time, previous *time.Time, silenceDays int) ActivityState {
	if previous == nil {
		return ActivityFirst
	}
	if silenceDays < 1 {
		silenceDays = DefaultSilenceDays
	}
	if publishedAt.Sub(*previous) >= time.Duration(silenceDays)*day {
		return ActivityResurfacing
	}
	return ActivityActive
}

// BaselinePriority bands an impact score into a delivery priority.
func BaselinePriority(impact int) int {
	switch {
	case impact >= 8:
		return 5
	case impact >= 6:
		return 4
	case impact >= 4:
		return 3
	default:
		return 2
	}
}

// Engine evaluates subscribers' rules.
type Engine struct {
	logger *slog.Logger
}

// NewEngine builds an Engine; a nil logger discards rule decoding failures.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger}
}

// Evaluate computes the priority and force flag for one user and one item.
// Malformed rules are skipped; the baseline still applies.
func (e *Engine) Evaluate(user domain.Subscriber, item domain.ContentItem, activity Activity) domain.RuleOutcome {
	baseline := BaselinePriority(item.ImpactScore)
	outcome := domain.RuleOutcome{Priority: baseline}

	bestBoost, matched := 0, false
	for _, rule := range user.Rules {
		if !rule.Enabled || !inScope(rule, user, item.GameID) {
			continue
		}
		decoded, err := Decode(rule)
		if err != nil {
			e.logger.Warn("skip malformed rule", "rule_id", rule.ID, "user_id", user.UserID, "error", err)
			continue
		}
		if !decoded.Matches(item, activity) {
			continue
		}
		if !matched || rule.PriorityBoost > bestBoost {
			bestBoost = rule.PriorityBoost
		}
		matched = true
		outcome.ForcePush = outcome.ForcePush || rule.ForcePush
		outcome.MatchedRules = append(outcome.MatchedRules, rule.ID)
	}

	if matched {
		outcome.Priority = clampPriority(baseline + bestBoost)
	}
	return outcome
}

func inScope(rule domain.AlertRule, user domain.Subscriber, gameID uuid.UUID) bool {
	switch rule.AppliesTo {
	case domain.ScopeAll, "":
		return true
	case domain.ScopeFollowed:
		return user.Follows(gameID)
	case domain.ScopeSpecific:
		for _, id := range rule.GameIDs {
			if id == gameID {
				return true
			}
		}
	}
	return false
}

func clampPriority(p int) int {
	if p < domain.MinPriority {
		return domain.MinPriority
	}
	if p > domain.MaxPriority {
		return domain.MaxPriority
	}
	return p
}
