// Package classify decides whether a piece of upstream text looks like patch notes.
package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Classifier is the injectable patch-likelihood heuristic used by source adapters.
type Classifier interface {
	Classify(text string) bool
}

// Func adapts a plain function to Classifier.
type Func func(text string) bool

// Classify calls f.
func (f Func) Classify(text string) bool { return f(text) }

var versionExpr = regexp.MustCompile(`(?i)(^|[^\w.])v?\d+\.\d+(\.\d+){0,2}[a-z]?($|[^\w.]|\.(\s|$))`)

// DefaultKeywords are words that mark patch-like posts.
var DefaultKeywords = []string{
	"patch", "update", "hotfix", "hot fix", "balance", "fix", "fixed", "fixes",
	"changelog", "change log", "release notes", "patch notes", "nerf", "buff",
}

// DefaultExclusions veto obviously promotional posts even when they mention an update.
var DefaultExclusions = []string{"sale", "discount", "giveaway", "% off", "merch"}

// Keyword matches version markers and keywords, after checking exclusions.
type Keyword struct {
	keywords   []*regexp.Regexp
	exclusions []*regexp.Regexp
}

// NewKeyword builds a keyword classifier; nil slices fall back to the defaults.
func NewKeyword(keywords, exclusions []string) *Keyword {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	if exclusions == nil {
		exclusions = DefaultExclusions
	}
	return &Keyword{keywords: compileTerms(keywords), exclusions: compileTerms(exclusions)}
}

// Classify reports whether text reads like a patch announcement.
func (k *Keyword) Classify(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range k.exclusions {
		if re.MatchString(lower) {
			return false
		}
	}
	if versionExpr.MatchString(lower) {
		return true
	}
	for _, re := range k.keywords {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Version extracts the first version marker from text, e.g. "1.4.2".
func Version(text string) string {
	m := versionExpr.FindString(text)
	if m == "" {
		return ""
	}
	return strings.TrimLeft(strings.Trim(m, " ()[]:,;!?.-\t\n"), "vV")
}

func compileTerms(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		out = append(out, termExpr(term))
	}
	return out
}

// termExpr matches term as a whole word. A side of the term that is not a word
// character ("% off") needs no boundary there.
func termExpr(term string) *regexp.Regexp {
	expr := regexp.QuoteMeta(term)
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	if isWordRune(first) {
		expr = `(^|\W)` + expr
	}
	if isWordRune(last) {
		expr += `($|\W)`
	}
	return regexp.MustCompile(expr)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
