package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/garnizeh/talentflow/pkg/models"
)

// Notification events fired on lifecycle transitions.
const (
	EventLeadCreated        = "lead_created"
	EventRecruiterResponded = "recruiter_responded"
	EventMeetingScheduled   = "meeting_scheduled"
)

// Channel is one operator notification target.
type Channel interface {
	Name() string
	Notify(ctx context.Context, event string, lead *models.Lead, posting *models.Posting) error
}

// notificationText builds the human-readable message for an event.
func notificationText(event string, lead *models.Lead, posting *models.Posting) string {
	title, org, url := "unknown posting", "", ""
	if posting != nil {
		title, org, url = posting.Title, posting.Organization, posting.URL
	}

	var sb strings.Builder
	switch event {
	case EventLeadCreated:
		fmt.Fprintf(&sb, "New lead: %s", title)
		if org != "" {
			fmt.Fprintf(&sb, " at %s", org)
		}
	case EventRecruiterResponded:
		fmt.Fprintf(&sb, "Recruiter responded: %s", title)
	case EventMeetingScheduled:
		fmt.Fprintf(&sb, "Meeting scheduled: %s", title)
		if lead.MeetingURL != "" {
			fmt.Fprintf(&sb, " (%s)", lead.MeetingURL)
		}
	default:
		fmt.Fprintf(&sb, "%s: %s", event, title)
	}
	fmt.Fprintf(&sb, "\nLead %s, status %s", lead.ID, lead.Status)
	if url != "" {
		fmt.Fprintf(&sb, "\n%s", url)
	}
	return sb.String()
}

// SlackChannel posts messages to an incoming-webhook URL.
type SlackChannel struct {
	WebhookURL string
	Client     *http.Client
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Notify(ctx context.Context, event string, lead *models.Lead, posting *models.Posting) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{"text": notificationText(event, lead, posting)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailChannel mails the operator via plain SMTP.
type EmailChannel struct {
	Addr     string // host:port
	From     string
	To       string
	Username string
	Password string
	Host     string // for auth, defaults to the host part of Addr
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Notify(ctx context.Context, event string, lead *models.Lead, posting *models.Posting) error {
	subject := strings.SplitN(notificationText(event, lead, posting), "\n", 2)[0]
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.From, e.To, subject, notificationText(event, lead, posting))

	var auth smtp.Auth
	if e.Username != "" {
		host := e.Host
		if host == "" {
			host = strings.SplitN(e.Addr, ":", 2)[0]
		}
		auth = smtp.PlainAuth("", e.Username, e.Password, host)
	}
	if err := smtp.SendMail(e.Addr, auth, e.From, []string{e.To}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogChannel writes notifications to the structured log, used as the
// always-on fallback channel.
type LogChannel struct {
	Logger *slog.Logger
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Notify(_ context.Context, event string, lead *models.Lead, posting *models.Posting) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := ""
	if posting != nil {
		title = posting.Title
	}
	logger.Info("operator notification", "event", event, "lead_id", lead.ID, "posting", title)
	return nil
}
