// Package domain defines the core entities shared across the pipeline:
// inbound messages, message batches and their lifecycle, derived records
// (alerts, summaries, analytics), and delivery queue items.
package domain

import "time"

// BatchStatus is the lifecycle state of a message batch.
// Transitions: pending -> processing -> done | error. Done and error are terminal.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchDone       BatchStatus = "done"
	BatchError      BatchStatus = "error"
)

// Message is an inbound group message. Immutable except for BatchID,
// which is set at most once when the message is tagged into a batch.
type Message struct {
	ID             string
	GroupID        string
	OrganizationID string
	AuthorHash     string
	ContentText    string
	MessageTS      time.Time
	BatchID        *string
	CreatedAt      time.Time
}

// MessageBatch is a time-bounded, group-scoped set of messages processed
// together by the analysis step.
type MessageBatch struct {
	ID             string
	OrganizationID string
	GroupID        string
	Status         BatchStatus
	StartTS        time.Time
	EndTS          time.Time
	MessageCount   int
	LockedAt       *time.Time
	ProcessedAt    *time.Time
	Error          *string
	CreatedAt      time.Time
}

// Terminal reports whether the batch has reached a final state.
func (b *MessageBatch) Terminal() bool {
	return b.Status == BatchDone || b.Status == BatchError
}

// Alert severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AlertStatusOpen is the initial alert status; later lifecycle is managed
// outside the pipeline.
const AlertStatusOpen = "open"

// Alert is a single finding persisted from analysis output.
type Alert struct {
	ID              string
	OrganizationID  string
	GroupID         string
	BatchID         string
	Title           string
	Summary         string
	Severity        string
	Status          string
	EvidenceExcerpt string
	IsRead          bool
	CreatedAt       time.Time
}

// Summary is a per-batch group summary persisted from analysis output.
type Summary struct {
	ID             string
	OrganizationID string
	GroupID        string
	BatchID        string
	SummaryText    string
	IsRead         bool
	CreatedAt      time.Time
}

// GroupAnalytics is the per-period analytics row, upserted by the
// (group_id, period_start, period_end) key.
type GroupAnalytics struct {
	ID              string
	GroupID         string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	SentimentScore  float64
	MessageCount    int
	AlertCountTotal int
	UpdatedAt       time.Time
}

// Delivery item types.
const (
	DeliveryEmail    = "email"
	DeliveryWhatsApp = "whatsapp"
)

// Delivery item statuses.
const (
	DeliveryPending = "pending"
	DeliverySending = "sending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// DeliveryItem is a persisted outbound message awaiting asynchronous send.
// Payload is the raw JSON document whose shape depends on Type.
type DeliveryItem struct {
	ID        string
	Type      string
	Payload   []byte
	Status    string
	Attempts  int
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
	SentAt    *time.Time
}

// EmailPayload is the delivery payload for type "email".
type EmailPayload struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
	UserID      string `json:"userId,omitempty"`
	EmailType   string `json:"emailType"`
}

// WhatsAppPayload is the delivery payload for type "whatsapp".
type WhatsAppPayload struct {
	To       string            `json:"to"`
	Type     string            `json:"type"`
	Text     *WhatsAppText     `json:"text,omitempty"`
	Template *WhatsAppTemplate `json:"template,omitempty"`
}

type WhatsAppText struct {
	Body string `json:"body"`
}

type WhatsAppTemplate struct {
	Name       string            `json:"name"`
	Language   WhatsAppLanguage  `json:"language"`
	Components []WhatsAppSection `json:"components"`
}

type WhatsAppLanguage struct {
	Code string `json:"code"`
}

// WhatsAppSection is one template component (body, header) with its
// positional parameters.
type WhatsAppSection struct {
	Type       string              `json:"type"`
	Parameters []WhatsAppParameter `json:"parameters"`
}

type WhatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// GroupContext carries the group and organization fields assembled for the
// analysis request.
type GroupContext struct {
	GroupID           string
	GroupName         string
	OrganizationID    string
	OrganizationName  string
	OrganizationPlan  string
	PresetName        string
	PresetDescription string
	WhatsAppAlertTo   string
}

// Admin is an organization admin resolved for urgent notifications.
type Admin struct {
	ID    string
	Email string
}
