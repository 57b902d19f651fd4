package dispatch

import (
	"log/slog"
	"net/url"

	"github.com/garnizeh/talentflow/pkg/models"
)

// MeetingLinker builds prefilled scheduling-page links (Calendly style) for
// a lead's contact. An unconfigured base URL degrades to an empty link; the
// pipeline proceeds without meeting metadata.
type MeetingLinker struct {
	BaseURL string
	Logger  *slog.Logger
}

// Link returns the scheduling URL for a posting's contact, or "" when no
// scheduling page is configured or the base URL is invalid.
func (m *MeetingLinker) Link(posting *models.Posting) string {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if m.BaseURL == "" {
		logger.Debug("scheduling page not configured, skipping meeting link")
		return ""
	}

	u, err := url.Parse(m.BaseURL)
	if err != nil {
		logger.Warn("invalid scheduling base url", "url", m.BaseURL, "error", err)
		return ""
	}

	q := u.Query()
	if posting.ContactName != "" {
		q.Set("name", posting.ContactName)
	}
	if posting.ContactEmail != "" {
		q.Set("email", posting.ContactEmail)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
