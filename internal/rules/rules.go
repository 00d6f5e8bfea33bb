// Package rules evaluates user alert rules against enriched content.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"PatchRadar/internal/domain"
)

const day = 24 * time.Hour

// Rule is a decoded alert rule variant.
type Rule interface {
	Matches(item domain.ContentItem, activity Activity) bool
}

// MajorPatchRule matches patches with a high impact score.
type MajorPatchRule struct {
	MinImpact int `json:"minImpact"`
}

// Matches implements Rule.
func (r MajorPatchRule) Matches(item domain.ContentItem, _ Activity) bool {
	return item.Kind == domain.KindPatch && item.ImpactScore >= r.MinImpact
}

// BalanceRule matches patches carrying at least MinChanges balance adjustments.
type BalanceRule struct {
	MinChanges int `json:"minChanges"`
}

var balanceLineExpr = regexp.MustCompile(`(?i)\b(buff(ed|s)?|nerf(ed|s)?|increased?|decreased?|reduced?|lowered|raised|rebalanced?|adjusted)\b`)

// Matches implements Rule.
func (r BalanceRule) Matches(item domain.ContentItem, _ Activity) bool {
	if item.Kind != domain.KindPatch {
		return false
	}
	changes := CountBalanceChanges(item.RawText)
	if changes == 0 && item.HasTag("balance") {
		changes = 1
	}
	return changes >= r.MinChanges
}

// CountBalanceChanges counts lines that read like a numeric tuning change.
func CountBalanceChanges(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if balanceLineExpr.MatchString(line) {
			count++
		}
	}
	return count
}

// ResurfacingRule matches the first patch after a long silence, for a limited window.
type ResurfacingRule struct {
	SilenceDays int `json:"silenceDays"`
	WindowDays  int `json:"windowDays"`
}

// Matches implements Rule.
func (r ResurfacingRule) Matches(item domain.ContentItem, activity Activity) bool {
	if item.Kind != domain.KindPatch {
		return false
	}
	if ClassifyActivity(item.PublishedAt, activity.PreviousPatchAt, r.SilenceDays) != ActivityResurfacing {
		return false
	}
	return activity.Now.Sub(item.PublishedAt) <= time.Duration(r.WindowDays)*day
}

// Condition is one clause of a CustomRule; all clauses must hold.
type Condition struct {
	Field string          `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
}

// CustomRule is a conjunction of field conditions.
type CustomRule struct {
	Conditions []Condition `json:"conditions"`
}

// Matches implements Rule.
func (r CustomRule) Matches(item domain.ContentItem, _ Activity) bool {
	for _, cond := range r.Conditions {
		ok, err := cond.eval(item)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (c Condition) validate() error {
	_, err := c.eval(domain.ContentItem{})
	return err
}

func (c Condition) eval(item domain.ContentItem) (bool, error) {
	switch c.Field {
	case "impactScore":
		var want int
		if err := json.Unmarshal(c.Value, &want); err != nil {
			return false, fmt.Errorf("%w: impactScore value: %v", domain.ErrInvalidRule, err)
		}
		return compareInt(item.ImpactScore, c.Op, want)
	case "tags":
		var want string
		if err := json.Unmarshal(c.Value, &want); err != nil {
			return false, fmt.Errorf("%w: tags value: %v", domain.ErrInvalidRule, err)
		}
		switch c.Op {
		case "contains":
			return item.HasTag(want), nil
		case "not_contains":
			return !item.HasTag(want), nil
		}
	case "kind":
		var want string
		if err := json.Unmarshal(c.Value, &want); err != nil {
			return false, fmt.Errorf("%w: kind value: %v", domain.ErrInvalidRule, err)
		}
		switch c.Op {
		case "eq":
			return string(item.Kind) == want, nil
		case "neq":
			return string(item.Kind) != want, nil
		}
	case "title", "text":
		var want string
		if err := json.Unmarshal(c.Value, &want); err != nil {
			return false, fmt.Errorf("%w: %s value: %v", domain.ErrInvalidRule, c.Field, err)
		}
		subject := item.Title
		if c.Field == "text" {
			subject = item.RawText + "\n" + item.SummaryTLDR
		}
		if c.Op == "contains" {
			return strings.Contains(strings.ToLower(subject), strings.ToLower(want)), nil
		}
	default:
		return false, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidRule, c.Field)
	}
	return false, fmt.Errorf("%w: operator %q not supported for %s", domain.ErrInvalidRule, c.Op, c.Field)
}

func compareInt(got int, op string, want int) (bool, error) {
	switch op {
	case "gte":
		return got >= want, nil
	case "gt":
		return got > want, nil
	case "lte":
		return got <= want, nil
	case "lt":
		return got < want, nil
	case "eq":
		return got == want, nil
	case "neq":
		return got != want, nil
	}
	return false, fmt.Errorf("%w: numeric operator %q", domain.ErrInvalidRule, op)
}

// Decode turns a rule's raw thresholds into its typed variant, applying defaults
// for omitted fields. Out-of-range values fail with domain.ErrInvalidRule.
func Decode(rule domain.AlertRule) (Rule, error) {
	raw := rule.Thresholds
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}

	switch rule.Type {
	case domain.RuleMajorPatch:
		r := MajorPatchRule{MinImpact: 7}
		if err := strictUnmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.MinImpact < domain.MinImpactScore || r.MinImpact > domain.MaxImpactScore {
			return nil, fmt.Errorf("%w: minImpact %d out of range", domain.ErrInvalidRule, r.MinImpact)
		}
		return r, nil
	case domain.RuleBalance:
		r := BalanceRule{MinChanges: 1}
		if err := strictUnmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.MinChanges < 1 {
			return nil, fmt.Errorf("%w: minChanges must be positive", domain.ErrInvalidRule)
		}
		return r, nil
	case domain.RuleResurfacing:
		r := ResurfacingRule{SilenceDays: 90, WindowDays: 7}
		if err := strictUnmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.SilenceDays < 1 || r.WindowDays < 1 {
			return nil, fmt.Errorf("%w: silenceDays and windowDays must be positive", domain.ErrInvalidRule)
		}
		return r, nil
	case domain.RuleCustom:
		var r CustomRule
		if err := strictUnmarshal(raw, &r); err != nil {
			return nil, err
		}
		if len(r.Conditions) == 0 {
			return nil, fmt.Errorf("%w: custom rule without conditions", domain.ErrInvalidRule)
		}
		for _, cond := range r.Conditions {
			if err := cond.validate(); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: unknown rule type %q", domain.ErrInvalidRule, rule.Type)
}

func strictUnmarshal(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRule, err)
	}
	return nil
}
