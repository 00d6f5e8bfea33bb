package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"PatchRadar/internal/domain"
)

// Category describes a site-level endpoint provided by config (e.g. a general news feed).
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
// Game is zero for site-level scans driven by Categories.
type Request struct {
	Game       domain.Game
	SiteName   string
	Kind       domain.ContentKind
	Since      time.Time
	Categories []Category
	Options    map[string]string
}

// PerGame reports whether the request targets a single tracked game.
func (r Request) PerGame() bool {
	return len(r.Categories) == 0
}

// Scanner captures a single feed adapter (Steam news, Reddit search, RSS, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.CandidateRecord, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered scanners in a stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Guard wraps a scanner so that errors and panics never leave the adapter:
// the caller always gets a (possibly empty) slice and the reason is logged.
func Guard(s Scanner, logger *slog.Logger) Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &guarded{inner: s, logger: logger}
}

type guarded struct {
	inner  Scanner
	logger *slog.Logger
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) Scan(ctx context.Context, req Request) (out []domain.CandidateRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.ErrorContext(ctx, "scanner panicked",
				"scanner", g.inner.Name(), "site", req.SiteName, "game", req.Game.Name, "panic", rec)
			out, err = nil, nil
		}
	}()

	started := time.Now()
	records, scanErr := g.inner.Scan(ctx, req)
	if scanErr != nil {
		g.logger.WarnContext(ctx, "scanner failed",
			"scanner", g.inner.Name(),
			"site", req.SiteName,
			"game", req.Game.Name,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", scanErr)
		return nil, nil
	}
	return records, nil
}
