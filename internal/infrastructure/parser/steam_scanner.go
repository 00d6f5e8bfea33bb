package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PatchRadar/internal/classify"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

const steamPatchTag = "patchnotes"

// SteamScanner reads the per-app news feed of the Steam Web API.
type SteamScanner struct {
	fetcher    *Fetcher
	classifier classify.Classifier
	apiBase    string
	count      int
}

// NewSteamScanner builds the structured feed adapter; count defaults to 10.
func NewSteamScanner(fetcher *Fetcher, classifier classify.Classifier, apiBase string, count int) *SteamScanner {
	if classifier == nil {
		classifier = classify.NewKeyword(nil, nil)
	}
	if count <= 0 {
		count = 10
	}
	return &SteamScanner{
		fetcher:    fetcher,
		classifier: classifier,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		count:      count,
	}
}

// Name identifies the strategy inside the registry.
func (s *SteamScanner) Name() string {
	return "steam"
}

type steamNewsResponse struct {
	AppNews struct {
		AppID     int             `json:"appid"`
		NewsItems []steamNewsItem `json:"newsitems"`
	} `json:"appnews"`
}

type steamNewsItem struct {
	GID      string   `json:"gid"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Contents string   `json:"contents"`
	FeedName string   `json:"feedname"`
	Date     int64    `json:"date"`
	Tags     []string `json:"tags"`
}

// Scan fetches the latest news of req.Game and keeps the patch-like entries.
func (s *SteamScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateRecord, error) {
	if req.Game.SteamAppID <= 0 {
		return nil, nil
	}

	body, err := s.fetcher.Get(ctx, s.buildURL(req.Game.SteamAppID), "application/json")
	if err != nil {
		return nil, fmt.Errorf("steam app %d: %w", req.Game.SteamAppID, err)
	}

	var payload steamNewsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("steam app %d: decode: %w", req.Game.SteamAppID, err)
	}

	records := make([]domain.CandidateRecord, 0, len(payload.AppNews.NewsItems))
	for _, item := range payload.AppNews.NewsItems {
		record, ok := s.toCandidate(item, req)
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *SteamScanner) toCandidate(item steamNewsItem, req scanner.Request) (domain.CandidateRecord, bool) {
	if item.URL == "" || strings.TrimSpace(item.Title) == "" {
		return domain.CandidateRecord{}, false
	}

	publishedAt := time.Unix(item.Date, 0).UTC()
	if !req.Since.IsZero() && publishedAt.Before(req.Since) {
		return domain.CandidateRecord{}, false
	}

	text := HTMLToText(StripBBCode(item.Contents))
	kind := req.Kind
	if kind == "" {
		kind = domain.KindPatch
	}

	tagged := hasTag(item.Tags, steamPatchTag)
	if kind == domain.KindPatch && !tagged && !s.classifier.Classify(item.Title+"\n"+text) {
		return domain.CandidateRecord{}, false
	}

	return domain.CandidateRecord{
		Kind:        kind,
		SourceType:  domain.SourceStructured,
		SourceName:  req.SiteName,
		SourceURL:   item.URL,
		Title:       strings.TrimSpace(item.Title),
		RawText:     text,
		PublishedAt: publishedAt,
		GameID:      req.Game.ID,
		GameRef:     req.Game.Name,
	}, true
}

func (s *SteamScanner) buildURL(appID int) string {
	query := url.Values{}
	query.Set("appid", strconv.Itoa(appID))
	query.Set("count", strconv.Itoa(s.count))
	query.Set("maxlength", "0")
	query.Set("format", "json")
	return s.apiBase + "/ISteamNews/GetNewsForApp/v2/?" + query.Encode()
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
