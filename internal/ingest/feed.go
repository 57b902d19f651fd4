package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JSONFeedSource pulls postings from a platform job feed that serves a
// JSON array of raw postings. It covers the platforms that expose feeds
// directly; HTML scraping stays outside the engine.
type JSONFeedSource struct {
	SourceName string
	FeedURL    string
	Platform   string
	Client     *http.Client
	Limiter    *HostLimiter
	Timeout    time.Duration
}

func (s *JSONFeedSource) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return s.Platform
}

func (s *JSONFeedSource) Fetch(ctx context.Context) ([]RawPosting, error) {
	if s.Limiter != nil {
		if err := s.Limiter.WaitURL(ctx, s.FeedURL); err != nil {
			return nil, err
		}
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed %s returned status %d", s.Name(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", s.Name(), err)
	}

	var items []RawPosting
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", s.Name(), err)
	}

	for i := range items {
		if items[i].Platform == "" {
			items[i].Platform = s.Platform
		}
	}
	return items, nil
}
