package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"jobradar/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RSS reads sources published as RSS/Atom feeds. It lets job channels
// with a feed mirror be scanned without any Telegram session.
type RSS struct {
	client  HTTPClient
	timeout time.Duration
}

// NewRSS creates an RSS feed backend with the given HTTP client.
func NewRSS(client HTTPClient) *RSS {
	return &RSS{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Resolve implements Feed. A source is resolvable if it is an absolute
// http(s) URL; the display name is refined to the feed title on fetch.
func (r *RSS) Resolve(_ context.Context, raw string) (Source, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Source{}, fmt.Errorf("%w: %q is not a feed URL", ErrAccessDenied, raw)
	}
	return Source{Raw: raw, Name: u.Host, url: raw}, nil
}

// Messages implements Feed.
func (r *RSS) Messages(ctx context.Context, src Source, cutoff time.Time, fn func(model.Message) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "JobRadar/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAccessDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}

	name := src.Name
	if parsed.Title != "" {
		name = parsed.Title
	}

	for i, item := range parsed.Items {
		published := time.Time{}
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}
		if !cutoff.IsZero() && !published.IsZero() && published.Before(cutoff) {
			continue
		}

		link := item.Link
		if link == "" {
			link = item.GUID
		}
		text := item.Title
		if item.Description != "" {
			text += "\n\n" + item.Description
		}

		if err := fn(model.Message{
			ID:          int64(i),
			Link:        link,
			Text:        text,
			PublishedAt: published,
			Source:      name,
		}); err != nil {
			return err
		}
	}
	return nil
}
