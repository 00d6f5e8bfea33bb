package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
	"PatchRadar/pkg/kvtext"
)

const maxInputRunes = 12000

const patchInstruction = `You summarize video game patch notes for players.
Reply with exactly three lines and nothing else:
TLDR: one or two sentences on what changed that players will notice
TAGS: comma separated lowercase tags from: balance, bugfix, content, performance, ui, economy, event, release, security
IMPACT: an integer from 0 (cosmetic) to 10 (game-changing)`

const newsInstruction = `You summarize video game news for players.
Reply with exactly three lines and nothing else:
TLDR: one or two sentences with the key facts
TAGS: comma separated lowercase tags from: announcement, release, launch, event, esports, studio, dlc, roadmap
IMPACT: an integer from 0 (minor) to 10 (major) for how much players care`

var leadingInt = regexp.MustCompile(`^-?\d+`)

// Summarizer turns a Completer into the enrichment summarization function.
type Summarizer struct {
	completer ports.Completer
}

var _ ports.Summarizer = (*Summarizer)(nil)

// NewSummarizer wraps completer.
func NewSummarizer(completer ports.Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize asks the model for TLDR/TAGS/IMPACT lines. Output that lacks
// TLDR or a numeric IMPACT fails with domain.ErrMalformedOutput.
func (s *Summarizer) Summarize(ctx context.Context, kind domain.JobKind, title, text string) (domain.Summary, error) {
	instruction := patchInstruction
	if kind == domain.JobNewsSummary {
		instruction = newsInstruction
	}

	out, err := s.completer.Complete(ctx, instruction, "Title: "+title+"\n\n"+truncateRunes(text, maxInputRunes))
	if err != nil {
		return domain.Summary{}, err
	}
	return ParseSummary(out)
}

// ParseSummary reads the summarizer reply grammar.
func ParseSummary(out string) (domain.Summary, error) {
	fields := kvtext.Parse(out)

	tldr, ok := kvtext.Lookup(fields, "TLDR")
	if !ok {
		if tldr, ok = kvtext.Lookup(fields, "TL;DR"); !ok {
			return domain.Summary{}, fmt.Errorf("%w: missing TLDR", domain.ErrMalformedOutput)
		}
	}

	rawImpact, ok := kvtext.Lookup(fields, "IMPACT")
	if !ok {
		if rawImpact, ok = kvtext.Lookup(fields, "IMPACT SCORE"); !ok {
			return domain.Summary{}, fmt.Errorf("%w: missing IMPACT", domain.ErrMalformedOutput)
		}
	}
	impact, err := strconv.Atoi(leadingInt.FindString(strings.TrimSpace(rawImpact)))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("%w: impact %q", domain.ErrMalformedOutput, rawImpact)
	}

	var tags []string
	if rawTags, ok := kvtext.Lookup(fields, "TAGS"); ok {
		for _, tag := range kvtext.SplitList(rawTags) {
			tags = append(tags, strings.ToLower(tag))
		}
	}

	return domain.Summary{
		TLDR:        tldr,
		Tags:        tags,
		ImpactScore: domain.ClampImpact(impact),
	}, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
