package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"PatchRadar/internal/catalog"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/ports"
)

// SteamDirectory discovers popular games from the Steam most-played chart.
type SteamDirectory struct {
	fetcher   *Fetcher
	apiBase   string
	storeBase string
	logger    *slog.Logger
}

var _ ports.GameDirectory = (*SteamDirectory)(nil)

// NewSteamDirectory wires the chart and store endpoints.
func NewSteamDirectory(fetcher *Fetcher, apiBase, storeBase string, logger *slog.Logger) *SteamDirectory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SteamDirectory{
		fetcher:   fetcher,
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		storeBase: strings.TrimSuffix(storeBase, "/"),
		logger:    logger,
	}
}

type mostPlayedResponse struct {
	Response struct {
		Ranks []struct {
			Rank  int `json:"rank"`
			AppID int `json:"appid"`
		} `json:"ranks"`
	} `json:"response"`
}

type appDetails struct {
	Success bool `json:"success"`
	Data    struct {
		Type       string `json:"type"`
		Name       string `json:"name"`
		SteamAppID int    `json:"steam_appid"`
	} `json:"data"`
}

// TopGames returns up to limit chart entries that the store lists as games.
func (d *SteamDirectory) TopGames(ctx context.Context, limit int) ([]domain.Game, error) {
	body, err := d.fetcher.Get(ctx, d.apiBase+"/ISteamChartsService/GetMostPlayedGames/v1/", "application/json")
	if err != nil {
		return nil, fmt.Errorf("most played chart: %w", err)
	}

	var chart mostPlayedResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("most played chart: decode: %w", err)
	}

	games := make([]domain.Game, 0, limit)
	for _, rank := range chart.Response.Ranks {
		if limit > 0 && len(games) >= limit {
			break
		}
		details, err := d.details(ctx, rank.AppID)
		if err != nil {
			d.logger.WarnContext(ctx, "app details unavailable", "app_id", rank.AppID, "error", err)
			continue
		}
		if !details.Success || details.Data.Type != "game" || strings.TrimSpace(details.Data.Name) == "" {
			continue
		}
		name := strings.TrimSpace(details.Data.Name)
		games = append(games, domain.Game{
			Name:       name,
			Slug:       catalog.Slugify(name),
			SteamAppID: rank.AppID,
		})
	}
	return games, nil
}

func (d *SteamDirectory) details(ctx context.Context, appID int) (appDetails, error) {
	query := url.Values{}
	query.Set("appids", strconv.Itoa(appID))
	query.Set("filters", "basic")

	body, err := d.fetcher.Get(ctx, d.storeBase+"/api/appdetails?"+query.Encode(), "application/json")
	if err != nil {
		return appDetails{}, err
	}

	var payload map[string]appDetails
	if err := json.Unmarshal(body, &payload); err != nil {
		return appDetails{}, fmt.Errorf("decode: %w", err)
	}
	details, ok := payload[strconv.Itoa(appID)]
	if !ok {
		return appDetails{}, fmt.Errorf("app %d missing from response", appID)
	}
	return details, nil
}
