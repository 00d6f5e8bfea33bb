package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

const redditFixture = `{
  "data": {
    "children": [
      {"kind": "t3", "data": {
        "title": "Patch 1.4.2 is live",
        "selftext": "Balance changes &amp; bug fixes for ranked mode.",
        "permalink": "/r/examplegame/comments/abc/patch_142_is_live/",
        "created_utc": 1762600000.5
      }},
      {"kind": "t3", "data": {
        "title": "Look at my fan art",
        "selftext": "Drew this over the weekend, hope you like it.",
        "permalink": "/r/examplegame/comments/def/fan_art/",
        "created_utc": 1762600000
      }},
      {"kind": "t3", "data": {
        "title": "Hotfix discussion",
        "selftext": "",
        "permalink": "/r/examplegame/comments/ghi/hotfix/",
        "created_utc": 1762600000,
        "over_18": true
      }}
    ]
  }
}`

func TestRedditScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/examplegame/search.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("restrict_sr") != "1" || q.Get("sort") != "new" || q.Get("t") != "week" {
			t.Errorf("unexpected query: %v", q)
		}
		_, _ = w.Write([]byte(redditFixture))
	}))
	defer server.Close()

	sc := NewRedditScanner(NewFetcher(server.Client(), "", 0), nil, server.URL, "", 10)
	game := domain.Game{ID: uuid.New(), Name: "Example Game", Subreddit: "r/examplegame"}

	records, err := sc.Scan(context.Background(), scanner.Request{
		Game:     game,
		SiteName: "reddit",
		Kind:     domain.KindPatch,
		Since:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.SourceURL != server.URL+"/r/examplegame/comments/abc/patch_142_is_live/" {
		t.Fatalf("unexpected source url: %s", rec.SourceURL)
	}
	if rec.RawText != "Balance changes & bug fixes for ranked mode." {
		t.Fatalf("unexpected text: %q", rec.RawText)
	}
	if rec.SourceType != domain.SourceForum || rec.GameID != game.ID {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.PublishedAt.Unix() != 1762600000 || rec.PublishedAt.Location() != time.UTC {
		t.Fatalf("unexpected timestamp: %v", rec.PublishedAt)
	}
}

func TestRedditScannerBlocked(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sc := NewRedditScanner(NewFetcher(server.Client(), "", 0), nil, server.URL, "", 0)
	_, err := sc.Scan(context.Background(), scanner.Request{Game: domain.Game{Subreddit: "examplegame"}})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}

	guarded := scanner.Guard(sc, nil)
	records, err := guarded.Scan(context.Background(), scanner.Request{Game: domain.Game{Subreddit: "examplegame"}})
	if err != nil || len(records) != 0 {
		t.Fatalf("guard should swallow blocked upstream, got %v %v", records, err)
	}
}
