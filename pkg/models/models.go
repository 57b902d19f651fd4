package models

// Domain models matching the database schema in db/migrations/0001_init.sql

import "time"

// Seniority is the normalized seniority classification extracted from a posting.
type Seniority string

const (
	SeniorityJunior  Seniority = "junior"
	SeniorityMiddle  Seniority = "middle"
	SenioritySenior  Seniority = "senior"
	SeniorityLead    Seniority = "lead"
	SeniorityUnknown Seniority = "unknown"
)

// NormalizeSeniority maps arbitrary engine output into the fixed enumeration.
// Unrecognized values become SeniorityUnknown, never an error.
func NormalizeSeniority(s string) Seniority {
	switch Seniority(s) {
	case SeniorityJunior, SeniorityMiddle, SenioritySenior, SeniorityLead:
		return Seniority(s)
	default:
		return SeniorityUnknown
	}
}

// LeadStatus is the cached projection of a lead's transition history.
type LeadStatus string

const (
	StatusPending      LeadStatus = "pending"
	StatusSent         LeadStatus = "sent"
	StatusResponded    LeadStatus = "responded"
	StatusQualified    LeadStatus = "qualified"
	StatusClosed       LeadStatus = "closed"
	StatusDisqualified LeadStatus = "disqualified"
)

// Terminal reports whether no transition may leave the status.
func (s LeadStatus) Terminal() bool {
	return s == StatusClosed || s == StatusDisqualified
}

// Posting is a single ingested job listing. Immutable after creation;
// corrections happen through new analysis records, never through mutation.
type Posting struct {
	Fingerprint  string `json:"fingerprint" db:"fingerprint"`
	Platform     string `json:"platform" db:"platform"`
	URL          string `json:"url" db:"url"`
	Title        string `json:"title" db:"title"`
	Organization string `json:"organization" db:"organization"`
	Description  string `json:"description" db:"description"`
	Requirements string `json:"requirements" db:"requirements"`
	Compensation string `json:"compensation,omitempty" db:"compensation"`
	Location     string `json:"location,omitempty" db:"location"`
	ContactName  string `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail string `json:"contact_email,omitempty" db:"contact_email"`
	FirstSeen    int64  `json:"first_seen" db:"first_seen"`
}

// AnalysisResult is one analysis run for a posting. A posting may accumulate
// several (re-analysis); the highest version is the current one.
type AnalysisResult struct {
	ID               int64     `json:"id" db:"id"`
	Fingerprint      string    `json:"fingerprint" db:"fingerprint"`
	Version          int64     `json:"version" db:"version"`
	Responsibilities []string  `json:"responsibilities"`
	TechRequirements []string  `json:"technical_requirements"`
	TargetMetrics    []string  `json:"target_metrics"`
	Seniority        Seniority `json:"seniority" db:"seniority"`
	GroundingContext []string  `json:"grounding_context,omitempty"`
	Created          int64     `json:"created" db:"created"`
}

// Lead tracks a posting from generated outreach through outcome.
type Lead struct {
	ID          string     `json:"id" db:"id"`
	Fingerprint string     `json:"fingerprint" db:"fingerprint"`
	Response    string     `json:"response" db:"response"`
	Status      LeadStatus `json:"status" db:"status"`
	MeetingURL  string     `json:"meeting_url,omitempty" db:"meeting_url"`
	Notes       string     `json:"notes,omitempty" db:"notes"`
	Created     int64      `json:"created" db:"created"`
	SentAt      *int64     `json:"sent_at,omitempty" db:"sent_at"`
	RespondedAt *int64     `json:"responded_at,omitempty" db:"responded_at"`
}

// InteractionKind tags an event in a lead's history.
type InteractionKind string

const (
	InteractionDispatchConfirmed InteractionKind = "dispatch_confirmed"
	InteractionOutboundSend      InteractionKind = "outbound_send"
	InteractionInboundReply      InteractionKind = "inbound_reply"
	InteractionMeetingScheduled  InteractionKind = "meeting_scheduled"
	InteractionNote              InteractionKind = "note"
	InteractionClosure           InteractionKind = "closure"
	InteractionDisqualified      InteractionKind = "disqualified"
)

// Interaction is one append-only event belonging to a lead. Ordering by
// creation time is significant: status derivation replays the sequence.
type Interaction struct {
	ID      int64           `json:"id" db:"id"`
	LeadID  string          `json:"lead_id" db:"lead_id"`
	Kind    InteractionKind `json:"kind" db:"kind"`
	Body    string          `json:"body,omitempty" db:"body"`
	Created int64           `json:"created" db:"created"`
}

// Profile is a fixed outreach persona used to generate responses.
// Profiles are static input loaded from configuration, not pipeline state.
type Profile struct {
	ID        string   `json:"id" yaml:"id"`
	Persona   string   `json:"persona" yaml:"persona"`
	Portfolio []string `json:"portfolio" yaml:"portfolio"`
	Contact   string   `json:"contact,omitempty" yaml:"contact"`
}

// GeneratedResponse is the validated output of the Response Engine.
type GeneratedResponse struct {
	Proposal  string   `json:"proposal_text"`
	Keywords  []string `json:"extracted_keywords,omitempty"`
	Sentiment string   `json:"sentiment,omitempty"`

	// Cached marks responses served from the response cache without a
	// second engine invocation.
	Cached bool `json:"-"`
}

// Operator is a human account for the management API.
type Operator struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	Updated      int64  `json:"updated" db:"updated"`
	PasswordHash string `json:"password_hash,omitempty" db:"password_hash"`
}

// ActionLog is one append-only record of a pipeline action and its outcome.
type ActionLog struct {
	ID          int64  `json:"id" db:"id"`
	Action      string `json:"action" db:"action"`
	Status      string `json:"status" db:"status"`
	Fingerprint string `json:"fingerprint,omitempty" db:"fingerprint"`
	LeadID      string `json:"lead_id,omitempty" db:"lead_id"`
	Error       string `json:"error,omitempty" db:"error"`
	Created     int64  `json:"created" db:"created"`
}

// Schema is a stored JSON schema used to validate engine output.
type Schema struct {
	ID          int64  `json:"id" db:"id"`
	Version     string `json:"version" db:"version"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

// Template is a stored prompt template.
type Template struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Version     string  `json:"version" db:"version"`
	TemplateTxt string  `json:"template_text" db:"template_text"`
	SchemaVer   *string `json:"schema_version,omitempty" db:"schema_version"`
	Metadata    *string `json:"metadata,omitempty" db:"metadata"`
	Created     int64   `json:"created" db:"created"`
	Updated     int64   `json:"updated" db:"updated"`
}

// Now returns the current unix timestamp used across the store.
func Now() int64 { return time.Now().UTC().Unix() }
