// Package catalog keeps the canonical game id <-> alias lookup used to match
// free-form upstream text to tracked games.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
)

// Catalog is safe for concurrent use; Load swaps the whole table at once.
type Catalog struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID][]string
	byAlias map[string]uuid.UUID
	names   map[uuid.UUID]string
	// aliases sorted longest first so "dota 2" wins over "dota".
	ordered []aliasMatcher
}

type aliasMatcher struct {
	alias string
	id    uuid.UUID
	re    *regexp.Regexp
}

// New builds a catalog from games.
func New(games []domain.Game) *Catalog {
	c := &Catalog{}
	c.Load(games)
	return c
}

// Load replaces the lookup tables. The first game to claim an alias keeps it.
func (c *Catalog) Load(games []domain.Game) {
	byID := make(map[uuid.UUID][]string, len(games))
	byAlias := make(map[string]uuid.UUID)
	names := make(map[uuid.UUID]string, len(games))

	for _, g := range games {
		names[g.ID] = g.Name
		for _, alias := range append([]string{g.Name, g.Slug}, g.Aliases...) {
			key := normalize(alias)
			if key == "" {
				continue
			}
			if _, taken := byAlias[key]; taken {
				continue
			}
			byAlias[key] = g.ID
			byID[g.ID] = append(byID[g.ID], key)
		}
	}

	ordered := make([]aliasMatcher, 0, len(byAlias))
	for alias, id := range byAlias {
		ordered = append(ordered, aliasMatcher{
			alias: alias,
			id:    id,
			re:    regexp.MustCompile(`(^|[^\pL\pN])` + regexp.QuoteMeta(alias) + `($|[^\pL\pN])`),
		})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i].alias) != len(ordered[j].alias) {
			return len(ordered[i].alias) > len(ordered[j].alias)
		}
		return ordered[i].alias < ordered[j].alias
	})

	c.mu.Lock()
	c.byID, c.byAlias, c.names, c.ordered = byID, byAlias, names, ordered
	c.mu.Unlock()
}

// Lookup resolves an exact alias (case and punctuation insensitive).
func (c *Catalog) Lookup(alias string) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byAlias[normalize(alias)]
	return id, ok
}

// Aliases returns the known aliases of a game.
func (c *Catalog) Aliases(id uuid.UUID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.byID[id]...)
}

// Name returns the display name of a game.
func (c *Catalog) Name(id uuid.UUID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.names[id]
}

// Match finds the game whose longest alias appears as a whole word in text.
func (c *Catalog) Match(text string) (uuid.UUID, bool) {
	norm := normalize(text)
	if norm == "" {
		return uuid.Nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.ordered {
		if m.re.MatchString(norm) {
			return m.id, true
		}
	}
	return uuid.Nil, false
}

// Resolve tries an exact alias first, then a whole-word match.
func (c *Catalog) Resolve(ref string) (uuid.UUID, bool) {
	if id, ok := c.Lookup(ref); ok {
		return id, true
	}
	return c.Match(ref)
}

// Len reports the number of games loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

var punct = strings.NewReplacer("'", "", "’", "", "-", " ", "_", " ", ":", " ")

func normalize(s string) string {
	s = punct.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

var slugExpr = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	return strings.Trim(slugExpr.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
