package parser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"PatchRadar/internal/classify"
	"PatchRadar/internal/domain"
	"PatchRadar/internal/scanner"
)

// RSSScanner reads RSS/Atom/JSON feeds, either a game's own feeds or
// site-wide news feeds whose items are matched to games later by name.
type RSSScanner struct {
	fetcher    *Fetcher
	classifier classify.Classifier
	now        func() time.Time
}

// NewRSSScanner builds the generic syndication adapter.
func NewRSSScanner(fetcher *Fetcher, classifier classify.Classifier) *RSSScanner {
	if classifier == nil {
		classifier = classify.NewKeyword(nil, nil)
	}
	return &RSSScanner{fetcher: fetcher, classifier: classifier, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan reads every feed of the request. A broken feed does not hide the others.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateRecord, error) {
	feeds := r.feedsFor(req)
	if len(feeds) == 0 {
		return nil, nil
	}

	var (
		results []domain.CandidateRecord
		errs    []error
		seen    = map[string]struct{}{}
	)
	for _, feedURL := range feeds {
		items, err := r.readFeed(ctx, feedURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feedURL, err))
			continue
		}
		for _, item := range items {
			record, ok := r.toCandidate(item, req)
			if !ok {
				continue
			}
			if _, dup := seen[record.SourceURL]; dup {
				continue
			}
			seen[record.SourceURL] = struct{}{}
			results = append(results, record)
		}
	}

	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

func (r *RSSScanner) feedsFor(req scanner.Request) []string {
	if req.PerGame() {
		return req.Game.FeedURLs
	}
	urls := make([]string, 0, len(req.Categories))
	for _, cat := range req.Categories {
		if cat.URL != "" {
			urls = append(urls, cat.URL)
		}
	}
	return urls
}

func (r *RSSScanner) readFeed(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	if err := r.fetcher.Wait(ctx, feedURL); err != nil {
		return nil, err
	}

	fp := gofeed.NewParser()
	fp.Client = r.fetcher.Client()
	fp.UserAgent = r.fetcher.UserAgent()

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusForbidden || httpErr.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("%w: status %d", ErrBlocked, httpErr.StatusCode)
			}
			return nil, &StatusError{URL: feedURL, StatusCode: httpErr.StatusCode}
		}
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed.Items, nil
}

func (r *RSSScanner) toCandidate(item *gofeed.Item, req scanner.Request) (domain.CandidateRecord, bool) {
	if item == nil || item.Link == "" || strings.TrimSpace(item.Title) == "" {
		return domain.CandidateRecord{}, false
	}

	publishedAt := r.now().UTC()
	switch {
	case item.PublishedParsed != nil:
		publishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		publishedAt = item.UpdatedParsed.UTC()
	}
	if !req.Since.IsZero() && publishedAt.Before(req.Since) {
		return domain.CandidateRecord{}, false
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	text := SanitizeText(HTMLToText(body))
	title := SanitizeText(item.Title)

	kind := req.Kind
	if kind == "" {
		kind = domain.KindNews
	}
	if kind == domain.KindPatch && !r.classifier.Classify(title+"\n"+text) {
		return domain.CandidateRecord{}, false
	}

	record := domain.CandidateRecord{
		Kind:        kind,
		SourceType:  domain.SourceSyndication,
		SourceName:  req.SiteName,
		SourceURL:   strings.TrimSpace(item.Link),
		Title:       title,
		RawText:     text,
		PublishedAt: publishedAt,
	}
	if req.PerGame() {
		record.GameID = req.Game.ID
		record.GameRef = req.Game.Name
	} else {
		record.GameRef = strings.TrimSpace(title + " " + strings.Join(item.Categories, " "))
	}
	return record, true
}
