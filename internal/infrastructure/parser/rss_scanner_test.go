package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Studio News</title>
    <link>https://studio.example.com</link>
    <description>News</description>
    <item>
      <title>Version 2.1 Patch Notes</title>
      <link>https://studio.example.com/news/2-1</link>
      <description><![CDATA[<p>New map <b>Harbor</b> and weapon <script>alert(1)</script>balance tweaks.</p>]]></description>
      <category>Starfall Tactics</category>
      <pubDate>Sat, 08 Nov 2025 10:00:00 +0100</pubDate>
    </item>
    <item>
      <title>Holiday Sale starts today</title>
      <link>https://studio.example.com/news/sale</link>
      <description>Everything 50% off, update your wishlist.</description>
      <pubDate>Sat, 08 Nov 2025 09:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Ancient patch</title>
      <link>https://studio.example.com/news/ancient</link>
      <description>Patch from long ago.</description>
      <pubDate>Mon, 01 Jan 2018 09:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func newRSSServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFixture))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRSSScannerPerGameFeeds(t *testing.T) {
	t.Parallel()

	server := newRSSServer(t)
	sc := NewRSSScanner(NewFetcher(server.Client(), "", 0), nil)
	game := domain.Game{ID: uuid.New(), Name: "Starfall Tactics", FeedURLs: []string{server.URL + "/feed.xml", server.URL + "/missing.xml"}}

	records, err := sc.Scan(context.Background(), scanner.Request{
		Game:     game,
		SiteName: "game-feeds",
		Kind:     domain.KindPatch,
		Since:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}

	rec := records[0]
	if rec.Title != "Version 2.1 Patch Notes" || rec.GameID != game.ID {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.RawText != "New map Harbor and weapon balance tweaks." {
		t.Fatalf("unexpected text: %q", rec.RawText)
	}
	want := time.Date(2025, time.November, 8, 9, 0, 0, 0, time.UTC)
	if !rec.PublishedAt.Equal(want) || rec.PublishedAt.Location() != time.UTC {
		t.Fatalf("unexpected timestamp: %v", rec.PublishedAt)
	}
}

func TestRSSScannerSiteFeedCarriesGameRef(t *testing.T) {
	t.Parallel()

	server := newRSSServer(t)
	sc := NewRSSScanner(NewFetcher(server.Client(), "", 0), nil)

	records, err := sc.Scan(context.Background(), scanner.Request{
		SiteName:   "studio",
		Kind:       domain.KindNews,
		Since:      time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Categories: []scanner.Category{{Name: "all", URL: server.URL + "/feed.xml"}},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 news records, got %d", len(records))
	}
	if records[0].GameID != uuid.Nil {
		t.Fatalf("site-level record should not carry a game id")
	}
	if records[0].GameRef != "Version 2.1 Patch Notes Starfall Tactics" {
		t.Fatalf("unexpected game ref: %q", records[0].GameRef)
	}
}

func TestRSSScannerAllFeedsBroken(t *testing.T) {
	t.Parallel()

	server := newRSSServer(t)
	sc := NewRSSScanner(NewFetcher(server.Client(), "", 0), nil)

	_, err := sc.Scan(context.Background(), scanner.Request{
		Game: domain.Game{FeedURLs: []string{server.URL + "/missing.xml"}},
	})
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 status error, got %v", err)
	}
}
