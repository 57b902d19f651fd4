package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/garnizeh/talentflow/pkg/models"
)

// EmailSender delivers proposals to the posting's contact address via SMTP.
type EmailSender struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string
}

func (e *EmailSender) Send(_ context.Context, posting *models.Posting, lead *models.Lead, proposal string) error {
	if posting.ContactEmail == "" {
		return fmt.Errorf("posting %s has no contact email", posting.Fingerprint)
	}

	subject := "Regarding your posting: " + posting.Title
	body := proposal
	if lead.MeetingURL != "" {
		body += "\n\nYou can book a call here: " + lead.MeetingURL
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.From, posting.ContactEmail, subject, body)

	var auth smtp.Auth
	if e.Username != "" {
		host := e.Host
		if host == "" {
			host = strings.SplitN(e.Addr, ":", 2)[0]
		}
		auth = smtp.PlainAuth("", e.Username, e.Password, host)
	}
	if err := smtp.SendMail(e.Addr, auth, e.From, []string{posting.ContactEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("send proposal mail: %w", err)
	}
	return nil
}

// LogSender logs instead of delivering, for dry-run installs without an
// outbound transport configured.
type LogSender struct {
	Logger *slog.Logger
}

func (l *LogSender) Send(_ context.Context, posting *models.Posting, lead *models.Lead, proposal string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry-run dispatch",
		"lead_id", lead.ID, "posting", posting.Title, "contact", posting.ContactEmail, "chars", len(proposal))
	return nil
}
