package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"

	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

const steamFixture = `{
  "appnews": {
    "appid": 440,
    "newsitems": [
      {
        "gid": "1",
        "title": "Team Fortress 2 Update Released",
        "url": "https://store.steampowered.com/news/app/440/view/1",
        "contents": "[list][*]Fixed a crash when joining [b]community servers[/b][/list]<p>Improved matchmaking stability.</p>",
        "feedname": "steam_community_announcements",
        "date": 1762600000,
        "tags": ["patchnotes"]
      },
      {
        "gid": "2",
        "title": "Community spotlight",
        "url": "https://store.steampowered.com/news/app/440/view/2",
        "contents": "Look at these amazing maps made by the community this month.",
        "feedname": "steam_community_announcements",
        "date": 1762600000
      },
      {
        "gid": "3",
        "title": "Old hotfix",
        "url": "https://store.steampowered.com/news/app/440/view/3",
        "contents": "Hotfix for the previous patch.",
        "date": 1600000000
      }
    ]
  }
}`

func TestSteamScannerScan(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ISteamNews/GetNewsForApp/v2/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(steamFixture))
	}))
	defer server.Close()

	sc := NewSteamScanner(NewFetcher(server.Client(), "PatchRadarTest/1.0", 0), nil, server.URL, 5)
	game := domain.Game{ID: uuid.New(), Name: "Team Fortress 2", SteamAppID: 440}

	records, err := sc.Scan(context.Background(), scanner.Request{
		Game:     game,
		SiteName: "steam-news",
		Kind:     domain.KindPatch,
		Since:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if gotQuery.Get("appid") != "440" || gotQuery.Get("count") != "5" || gotQuery.Get("maxlength") != "0" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}
	if gotAgent != "PatchRadarTest/1.0" {
		t.Fatalf("unexpected user agent: %s", gotAgent)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.GameID != game.ID || rec.SourceType != domain.SourceStructured || rec.Kind != domain.KindPatch {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.PublishedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", rec.PublishedAt.Location())
	}
	want := "- Fixed a crash when joining community servers\nImproved matchmaking stability."
	if rec.RawText != want {
		t.Fatalf("unexpected text: %q", rec.RawText)
	}
}

func TestSteamScannerSkipsGamesWithoutApp(t *testing.T) {
	t.Parallel()

	sc := NewSteamScanner(NewFetcher(nil, "", 0), nil, "http://127.0.0.1:1", 0)
	records, err := sc.Scan(context.Background(), scanner.Request{Game: domain.Game{Name: "No Steam"}})
	if err != nil || records != nil {
		t.Fatalf("expected no work, got %v %v", records, err)
	}
}

func TestSteamScannerReportsUpstreamFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sc := NewSteamScanner(NewFetcher(server.Client(), "", 0), nil, server.URL, 0)
	_, err := sc.Scan(context.Background(), scanner.Request{Game: domain.Game{SteamAppID: 1}})
	if !IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("expected 502 status error, got %v", err)
	}
}
