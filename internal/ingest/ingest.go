// Package ingest turns raw postings from external listing sources into
// normalized Posting records with a stable fingerprint identity.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/garnizeh/talentflow/pkg/models"
)

// RawPosting is what a listing source produces. It is agnostic to scrape
// mechanics; the description may contain HTML.
type RawPosting struct {
	Platform     string `json:"platform"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Organization string `json:"company"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	Compensation string `json:"compensation"`
	Location     string `json:"location"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
}

// Source fetches raw postings from one listing platform.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawPosting, error)
}

// Normalize validates a raw posting and produces the durable record:
// canonical URL, derived fingerprint, sanitized text.
func Normalize(raw RawPosting) (*models.Posting, error) {
	if strings.TrimSpace(raw.Title) == "" {
		return nil, fmt.Errorf("posting has no title")
	}
	platform := strings.ToLower(strings.TrimSpace(raw.Platform))
	if platform == "" {
		return nil, fmt.Errorf("posting has no platform")
	}

	canon, err := CanonicalURL(raw.URL)
	if err != nil {
		return nil, fmt.Errorf("canonicalize %q: %w", raw.URL, err)
	}

	return &models.Posting{
		Fingerprint:  Fingerprint(platform, canon),
		Platform:     platform,
		URL:          canon,
		Title:        strings.TrimSpace(raw.Title),
		Organization: strings.TrimSpace(raw.Organization),
		Description:  StripHTML(raw.Description),
		Requirements: StripHTML(raw.Requirements),
		Compensation: strings.TrimSpace(raw.Compensation),
		Location:     strings.TrimSpace(raw.Location),
		ContactName:  strings.TrimSpace(raw.ContactName),
		ContactEmail: strings.TrimSpace(strings.ToLower(raw.ContactEmail)),
		FirstSeen:    models.Now(),
	}, nil
}
