package rules

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatchRadar/internal/domain"
)

var now = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

func patch(impact int) domain.ContentItem {
	return domain.ContentItem{
		ID:          uuid.New(),
		Kind:        domain.KindPatch,
		GameID:      uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Title:       "Patch 2.0",
		PublishedAt: now.Add(-time.Hour),
		ImpactScore: impact,
	}
}

func rule(t domain.RuleType, thresholds string, boost int, force bool) domain.AlertRule {
	return domain.AlertRule{
		ID:            uuid.New(),
		Type:          t,
		AppliesTo:     domain.ScopeAll,
		Thresholds:    json.RawMessage(thresholds),
		PriorityBoost: boost,
		ForcePush:     force,
		Enabled:       true,
	}
}

func TestBaselinePriority(t *testing.T) {
	t.Parallel()

	cases := map[int]int{10: 5, 9: 5, 8: 5, 7: 4, 6: 4, 5: 3, 4: 3, 3: 2, 0: 2}
	for impact, want := range cases {
		assert.Equal(t, want, BaselinePriority(impact), "impact %d", impact)
	}
}

func TestEvaluateWithoutRulesUsesBaseline(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil)
	out := e.Evaluate(domain.Subscriber{UserID: uuid.New()}, patch(9), Activity{Now: now})
	assert.Equal(t, 5, out.Priority)
	assert.False(t, out.ForcePush)

	out = e.Evaluate(domain.Subscriber{UserID: uuid.New()}, patch(5), Activity{Now: now})
	assert.Equal(t, 3, out.Priority)
}

func TestEvaluateHighestBoostAndForcePush(t *testing.T) {
	t.Parallel()

	user := domain.Subscriber{
		UserID: uuid.New(),
		Rules: []domain.AlertRule{
			rule(domain.RuleMajorPatch, `{"minImpact":5}`, 1, false),
			rule(domain.RuleCustom, `{"conditions":[{"field":"impactScore","op":"gte","value":4}]}`, -1, true),
			rule(domain.RuleMajorPatch, `{"minImpact":9}`, 2, false),
		},
	}

	out := NewEngine(nil).Evaluate(user, patch(5), Activity{Now: now})
	assert.Equal(t, 4, out.Priority, "baseline 3 plus best boost 1")
	assert.True(t, out.ForcePush)
	assert.Len(t, out.MatchedRules, 2)
}

func TestEvaluateClampsPriority(t *testing.T) {
	t.Parallel()

	user := domain.Subscriber{Rules: []domain.AlertRule{rule(domain.RuleMajorPatch, `{}`, 3, false)}}
	assert.Equal(t, domain.MaxPriority, NewEngine(nil).Evaluate(user, patch(9), Activity{Now: now}).Priority)

	user = domain.Subscriber{Rules: []domain.AlertRule{rule(domain.RuleMajorPatch, `{"minImpact":0}`, -5, false)}}
	assert.Equal(t, domain.MinPriority, NewEngine(nil).Evaluate(user, patch(1), Activity{Now: now}).Priority)
}

func TestEvaluateSkipsMalformedAndDisabledRules(t *testing.T) {
	t.Parallel()

	disabled := rule(domain.RuleMajorPatch, `{"minImpact":1}`, 2, true)
	disabled.Enabled = false
	user := domain.Subscriber{Rules: []domain.AlertRule{
		rule(domain.RuleMajorPatch, `{"minImpact":"lots"}`, 2, true),
		rule(domain.RuleCustom, `{"conditions":[{"field":"mood","op":"eq","value":1}]}`, 2, true),
		rule("unheard_of", `{}`, 2, true),
		disabled,
	}}

	out := NewEngine(nil).Evaluate(user, patch(7), Activity{Now: now})
	assert.Equal(t, 4, out.Priority)
	assert.False(t, out.ForcePush)
	assert.Empty(t, out.MatchedRules)
}

func TestEvaluateScopes(t *testing.T) {
	t.Parallel()

	item := patch(9)
	other := uuid.New()

	followed := rule(domain.RuleMajorPatch, `{}`, 0, true)
	followed.AppliesTo = domain.ScopeFollowed
	specific := rule(domain.RuleMajorPatch, `{}`, 0, true)
	specific.AppliesTo = domain.ScopeSpecific
	specific.GameIDs = []uuid.UUID{other}

	user := domain.Subscriber{Rules: []domain.AlertRule{followed, specific}}
	assert.False(t, NewEngine(nil).Evaluate(user, item, Activity{Now: now}).ForcePush)

	user.Followed = []uuid.UUID{item.GameID}
	assert.True(t, NewEngine(nil).Evaluate(user, item, Activity{Now: now}).ForcePush)

	specific.GameIDs = append(specific.GameIDs, item.GameID)
	user = domain.Subscriber{Rules: []domain.AlertRule{specific}}
	assert.True(t, NewEngine(nil).Evaluate(user, item, Activity{Now: now}).ForcePush)
}

func TestBalanceRule(t *testing.T) {
	t.Parallel()

	item := patch(5)
	item.RawText = "- Rifle damage increased to 40\n- Shotgun spread reduced\n- Fixed a typo"
	r, err := Decode(rule(domain.RuleBalance, `{"minChanges":2}`, 0, false))
	require.NoError(t, err)
	assert.True(t, r.Matches(item, Activity{}))

	r, err = Decode(rule(domain.RuleBalance, `{"minChanges":3}`, 0, false))
	require.NoError(t, err)
	assert.False(t, r.Matches(item, Activity{}))

	tagged := patch(5)
	tagged.Tags = []string{"balance"}
	r, err = Decode(rule(domain.RuleBalance, ``, 0, false))
	require.NoError(t, err)
	assert.True(t, r.Matches(tagged, Activity{}))
}

func TestResurfacingRule(t *testing.T) {
	t.Parallel()

	r, err := Decode(rule(domain.RuleResurfacing, `{"silenceDays":30,"windowDays":3}`, 0, false))
	require.NoError(t, err)

	item := patch(5)
	longAgo := item.PublishedAt.Add(-40 * day)
	recent := item.PublishedAt.Add(-5 * day)

	assert.True(t, r.Matches(item, Activity{Now: now, PreviousPatchAt: &longAgo}))
	assert.False(t, r.Matches(item, Activity{Now: now, PreviousPatchAt: &recent}))
	assert.False(t, r.Matches(item, Activity{Now: now}), "first ever patch is not resurfacing")
	assert.False(t, r.Matches(item, Activity{Now: now.Add(10 * day), PreviousPatchAt: &longAgo}), "outside window")
}

func TestClassifyActivityPrecedence(t *testing.T) {
	t.Parallel()

	published := now
	prev := now.Add(-91 * day)
	assert.Equal(t, ActivityResurfacing, ClassifyActivity(published, &prev, 90))

	prev = now.Add(-2 * day)
	assert.Equal(t, ActivityActive, ClassifyActivity(published, &prev, 90))
	assert.Equal(t, ActivityFirst, ClassifyActivity(published, nil, 90))

	exactly := now.Add(-90 * day)
	assert.Equal(t, ActivityResurfacing, ClassifyActivity(published, &exactly, 0))
}

func TestCustomRuleConditions(t *testing.T) {
	t.Parallel()

	item := patch(6)
	item.Tags = []string{"ranked", "balance"}
	item.Title = "Ranked Season Patch"

	r, err := Decode(rule(domain.RuleCustom, `{"conditions":[
		{"field":"tags","op":"contains","value":"ranked"},
		{"field":"title","op":"contains","value":"season"},
		{"field":"kind","op":"eq","value":"patch"},
		{"field":"impactScore","op":"gt","value":5}
	]}`, 0, false))
	require.NoError(t, err)
	assert.True(t, r.Matches(item, Activity{}))

	item.ImpactScore = 5
	assert.False(t, r.Matches(item, Activity{}))
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	bad := []domain.AlertRule{
		rule(domain.RuleMajorPatch, `{"minImpact":11}`, 0, false),
		rule(domain.RuleMajorPatch, `{"minImpakt":5}`, 0, false),
		rule(domain.RuleBalance, `{"minChanges":0}`, 0, false),
		rule(domain.RuleResurfacing, `{"silenceDays":-1}`, 0, false),
		rule(domain.RuleCustom, `{}`, 0, false),
		rule(domain.RuleCustom, `{"conditions":[{"field":"impactScore","op":"between","value":1}]}`, 0, false),
		rule(domain.RuleCustom, `[1,2]`, 0, false),
	}
	for _, r := range bad {
		_, err := Decode(r)
		assert.True(t, errors.Is(err, domain.ErrInvalidRule), "thresholds %s", r.Thresholds)
	}
}
