package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RuleType names the shape of an alert rule's thresholds.
type RuleType string

const (
	RuleMajorPatch  RuleType = "major_patch"
	RuleBalance     RuleType = "balance"
	RuleResurfacing RuleType = "resurfacing"
	RuleCustom      RuleType = "custom"
)

// Scope limits which games a rule applies to.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeFollowed Scope = "followed"
	ScopeSpecific Scope = "specific"
)

// AlertRule is user-owned configuration. Thresholds stay raw until the rule engine decodes them.
type AlertRule struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          RuleType
	AppliesTo     Scope
	GameIDs       []uuid.UUID
	Thresholds    json.RawMessage
	PriorityBoost int
	ForcePush     bool
	Enabled       bool
}

// Subscriber is a user interested in a game together with everything the rule engine needs.
type Subscriber struct {
	UserID   uuid.UUID
	Followed []uuid.UUID
	Rules    []AlertRule
}

// Follows reports whether the subscriber follows gameID.
func (s Subscriber) Follows(gameID uuid.UUID) bool {
	for _, id := range s.Followed {
		if id == gameID {
			return true
		}
	}
	return false
}

// RuleOutcome is the rule engine's verdict for one (user, content) pair.
type RuleOutcome struct {
	Priority     int
	ForcePush    bool
	MatchedRules []uuid.UUID
}
