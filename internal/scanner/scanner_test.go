package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PatchRadar/internal/domain"
)

type stubScanner struct {
	name    string
	records []domain.CandidateRecord
	err     error
	panics  bool
}

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Scan(context.Context, Request) ([]domain.CandidateRecord, error) {
	if s.panics {
		panic("boom")
	}
	return s.records, s.err
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner{name: "rss"})
	reg.Register(stubScanner{name: "steam"})

	s, err := reg.Resolve("steam")
	require.NoError(t, err)
	assert.Equal(t, "steam", s.Name())

	_, err = reg.Resolve("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"rss", "steam"}, reg.Names())
}

func TestGuardSwallowsFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	failing := Guard(stubScanner{name: "reddit", err: errors.New("403 Forbidden")}, nil)
	out, err := failing.Scan(ctx, Request{})
	assert.NoError(t, err)
	assert.Empty(t, out)

	panicking := Guard(stubScanner{name: "rss", panics: true}, nil)
	out, err = panicking.Scan(ctx, Request{})
	assert.NoError(t, err)
	assert.Empty(t, out)

	ok := Guard(stubScanner{name: "steam", records: []domain.CandidateRecord{{Title: "Patch 1.0"}}}, nil)
	out, err = ok.Scan(ctx, Request{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "steam", ok.Name())
}

func TestRequestPerGame(t *testing.T) {
	t.Parallel()

	assert.True(t, Request{}.PerGame())
	assert.False(t, Request{Categories: []Category{{Name: "news", URL: "https://example.org/rss"}}}.PerGame())
}
