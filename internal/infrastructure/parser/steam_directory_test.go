package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSteamDirectoryTopGames(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ISteamChartsService/GetMostPlayedGames/v1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"ranks":[{"rank":1,"appid":730},{"rank":2,"appid":431960},{"rank":3,"appid":570},{"rank":4,"appid":999}]}}`))
	})
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("appids") {
		case "730":
			_, _ = w.Write([]byte(`{"730":{"success":true,"data":{"type":"game","name":"Counter-Strike 2","steam_appid":730}}}`))
		case "431960":
			_, _ = w.Write([]byte(`{"431960":{"success":true,"data":{"type":"application","name":"Wallpaper Engine","steam_appid":431960}}}`))
		case "570":
			_, _ = w.Write([]byte(`{"570":{"success":true,"data":{"type":"game","name":"Dota 2","steam_appid":570}}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := NewSteamDirectory(NewFetcher(server.Client(), "", time.Millisecond), server.URL, server.URL, nil)
	games, err := dir.TopGames(context.Background(), 5)
	if err != nil {
		t.Fatalf("TopGames error: %v", err)
	}

	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d", len(games))
	}
	if games[0].Name != "Counter-Strike 2" || games[0].SteamAppID != 730 || games[0].Slug != "counter-strike-2" {
		t.Fatalf("unexpected first game: %+v", games[0])
	}
	if games[1].Name != "Dota 2" {
		t.Fatalf("unexpected second game: %+v", games[1])
	}
}

func TestSteamDirectoryRespectsLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/appdetails" {
			id := r.URL.Query().Get("appids")
			_, _ = w.Write([]byte(`{"` + id + `":{"success":true,"data":{"type":"game","name":"Game ` + id + `"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"response":{"ranks":[{"appid":1},{"appid":2},{"appid":3}]}}`))
	}))
	defer server.Close()

	dir := NewSteamDirectory(NewFetcher(server.Client(), "", 0), server.URL, server.URL, nil)
	games, err := dir.TopGames(context.Background(), 2)
	if err != nil || len(games) != 2 {
		t.Fatalf("expected 2 games, got %d (%v)", len(games), err)
	}
}

func TestFetcherWaitsPerHost(t *testing.T) {
	t.Parallel()

	f := NewFetcher(nil, "", 30*time.Millisecond)
	ctx := context.Background()

	started := time.Now()
	for i := 0; i < 3; i++ {
		if err := f.Wait(ctx, "https://a.example.com/x"); err != nil {
			t.Fatalf("Wait error: %v", err)
		}
	}
	if elapsed := time.Since(started); elapsed < 50*time.Millisecond {
		t.Fatalf("expected host throttling, elapsed %v", elapsed)
	}

	other := time.Now()
	if err := f.Wait(ctx, "https://b.example.com/x"); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if time.Since(other) > 20*time.Millisecond {
		t.Fatalf("a different host should not be throttled")
	}
}
