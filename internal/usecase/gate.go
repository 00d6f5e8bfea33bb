package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"PatchRadar/internal/config"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// Reason explains an admission decision.
type Reason string

const (
	ReasonAdmitted       Reason = "admitted"
	ReasonTooShort       Reason = "too_short"
	ReasonDuplicateURL   Reason = "duplicate_url"
	ReasonDuplicateTitle Reason = "duplicate_title"
	ReasonUnknownGame    Reason = "unknown_game"
	ReasonRaceLost       Reason = "race_lost"
)

const defaultMinBodyLength = 20

// AdmissionResult is the gate's verdict for one candidate.
type AdmissionResult struct {
	Admitted  bool
	Reason    Reason
	ContentID uuid.UUID
}

// GameResolver maps a free-form game reference to a tracked game.
type GameResolver interface {
	Resolve(ref string) (uuid.UUID, bool)
}

// Gate validates and deduplicates candidates, then persists them with their job.
type Gate struct {
	content  ports.ContentRepository
	resolver GameResolver
	cfg      config.IngestionConfig
	metrics  ports.Metrics
	logger   *slog.Logger
}

// NewGate wires the gate. resolver may be nil when every candidate carries a game id.
func NewGate(content ports.ContentRepository, resolver GameResolver, cfg config.IngestionConfig, metrics ports.Metrics, logger *slog.Logger) *Gate {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{content: content, resolver: resolver, cfg: cfg, metrics: metrics, logger: logger}
}

// Admit runs the length check, the exact URL stage and the fuzzy title stage.
// An admitted candidate is stored together with exactly one pending enrichment job.
func (g *Gate) Admit(ctx context.Context, c domain.CandidateRecord) (AdmissionResult, error) {
	result, err := g.admit(ctx, c)
	if err != nil {
		return result, err
	}
	g.metrics.CountAdmission(string(result.Reason))
	if !result.Admitted {
		g.logger.DebugContext(ctx, "candidate rejected", "reason", result.Reason, "source_url", c.SourceURL)
	}
	return result, nil
}

func (g *Gate) admit(ctx context.Context, c domain.CandidateRecord) (AdmissionResult, error) {
	gameID := c.GameID
	if gameID == uuid.Nil {
		if g.resolver == nil || c.GameRef == "" {
			return AdmissionResult{Reason: ReasonUnknownGame}, nil
		}
		id, ok := g.resolver.Resolve(c.GameRef)
		if !ok {
			return AdmissionResult{Reason: ReasonUnknownGame}, nil
		}
		gameID = id
	}

	body := strings.TrimSpace(c.RawText)
	if utf8.RuneCountInString(body) < g.minBodyLength(c.SourceType) {
		return AdmissionResult{Reason: ReasonTooShort}, nil
	}

	kind := c.Kind
	if kind == "" {
		kind = domain.KindPatch
	}

	exists, err := g.content.ExistsBySourceURL(ctx, kind, c.SourceURL)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("check source url: %w", err)
	}
	if exists {
		return AdmissionResult{Reason: ReasonDuplicateURL}, nil
	}

	titles, err := g.content.RecentTitles(ctx, gameID, kind, g.cfg.RecentTitles)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("load recent titles: %w", err)
	}
	if FuzzyDuplicate(c.Title, titles, g.cfg.FuzzyPrefix) {
		return AdmissionResult{Reason: ReasonDuplicateTitle}, nil
	}

	id, err := g.content.CreateWithJob(ctx, domain.ContentItem{
		ID:               uuid.New(),
		Kind:             kind,
		GameID:           gameID,
		Title:            strings.TrimSpace(c.Title),
		SourceType:       c.SourceType,
		SourceName:       c.SourceName,
		SourceURL:        c.SourceURL,
		RawText:          body,
		PublishedAt:      c.PublishedAt.UTC(),
		ImpactScore:      domain.DefaultImpactScore,
		EnrichmentStatus: domain.EnrichmentPending,
	}, domain.JobKindFor(kind))
	if errors.Is(err, domain.ErrAlreadyExists) {
		return AdmissionResult{Reason: ReasonRaceLost}, nil
	}
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("store candidate: %w", err)
	}
	return AdmissionResult{Admitted: true, Reason: ReasonAdmitted, ContentID: id}, nil
}

func (g *Gate) minBodyLength(sourceType domain.SourceType) int {
	if n, ok := g.cfg.MinBodyLength[string(sourceType)]; ok {
		return n
	}
	return defaultMinBodyLength
}

// FuzzyDuplicate reports whether the first prefix runes of title, lower-cased, and
// those of any existing title contain one another.
func FuzzyDuplicate(title string, existing []string, prefix int) bool {
	candidate := titlePrefix(title, prefix)
	if candidate == "" {
		return false
	}
	for _, other := range existing {
		o := titlePrefix(other, prefix)
		if o == "" {
			continue
		}
		if strings.Contains(candidate, o) || strings.Contains(o, candidate) {
			return true
		}
	}
	return false
}

func titlePrefix(title string, n int) string {
	s := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if n <= 0 {
		n = 50
	}
	return truncateRunes(s, n)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
