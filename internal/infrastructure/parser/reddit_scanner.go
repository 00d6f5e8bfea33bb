package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PatchRadar/internal/classify"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

// ErrBlocked marks an upstream that refused an automated client (403/429).
var ErrBlocked = errors.New("upstream blocked automated access")

// RedditScanner searches a game's community forum for patch threads.
type RedditScanner struct {
	fetcher    *Fetcher
	classifier classify.Classifier
	apiBase    string
	query      string
	limit      int
}

// NewRedditScanner builds the forum search adapter.
func NewRedditScanner(fetcher *Fetcher, classifier classify.Classifier, apiBase, query string, limit int) *RedditScanner {
	if classifier == nil {
		classifier = classify.NewKeyword(nil, nil)
	}
	if query == "" {
		query = "patch OR update OR hotfix"
	}
	if limit <= 0 {
		limit = 25
	}
	return &RedditScanner{
		fetcher:    fetcher,
		classifier: classifier,
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		query:      query,
		limit:      limit,
	}
}

// Name identifies the strategy inside the registry.
func (r *RedditScanner) Name() string {
	return "reddit"
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
	Over18     bool    `json:"over_18"`
	Removed    string  `json:"removed_by_category"`
}

// Scan searches req.Game's subreddit for recent patch-like threads.
func (r *RedditScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateRecord, error) {
	sub := strings.TrimPrefix(strings.TrimSpace(req.Game.Subreddit), "r/")
	if sub == "" {
		return nil, nil
	}

	body, err := r.fetcher.Get(ctx, r.buildURL(sub), "application/json")
	if err != nil {
		if IsStatus(err, http.StatusForbidden, http.StatusTooManyRequests) {
			return nil, fmt.Errorf("subreddit %s: %w: %v", sub, ErrBlocked, err)
		}
		return nil, fmt.Errorf("subreddit %s: %w", sub, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("subreddit %s: decode: %w", sub, err)
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.KindPatch
	}

	records := make([]domain.CandidateRecord, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Permalink == "" || post.Over18 || post.Removed != "" {
			continue
		}

		publishedAt := fromUnixFloat(post.CreatedUTC)
		if !req.Since.IsZero() && publishedAt.Before(req.Since) {
			continue
		}

		text := SanitizeText(post.SelfText)
		if kind == domain.KindPatch && !r.classifier.Classify(post.Title+"\n"+text) {
			continue
		}

		records = append(records, domain.CandidateRecord{
			Kind:        kind,
			SourceType:  domain.SourceForum,
			SourceName:  req.SiteName,
			SourceURL:   r.apiBase + post.Permalink,
			Title:       strings.TrimSpace(post.Title),
			RawText:     text,
			PublishedAt: publishedAt,
			GameID:      req.Game.ID,
			GameRef:     req.Game.Name,
		})
	}
	return records, nil
}

func (r *RedditScanner) buildURL(sub string) string {
	query := url.Values{}
	query.Set("q", r.query)
	query.Set("restrict_sr", "1")
	query.Set("sort", "new")
	query.Set("t", "week")
	query.Set("limit", strconv.Itoa(r.limit))
	return fmt.Sprintf("%s/r/%s/search.json?%s", r.apiBase, url.PathEscape(sub), query.Encode())
}

func fromUnixFloat(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
