// Package intelligence bridges the pipeline to the external analysis
// service. The service receives one fully assembled batch payload and
// returns structured findings; all response fields are optional since a
// quiet batch may produce none of them.
package intelligence

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Request is the analysis payload for one batch.
type Request struct {
	BatchID             string              `json:"batch_id"`
	OrganizationID      string              `json:"organization_id"`
	GroupName           string              `json:"group_name"`
	AgentPreset         AgentPreset         `json:"agent_preset"`
	OrganizationContext OrganizationContext `json:"organization_context"`
	Messages            []RequestMessage    `json:"messages"`
}

type AgentPreset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type OrganizationContext struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type RequestMessage struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Finding is one alert reported by the analysis service.
type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Evidence    string `json:"evidence"`
}

// Analysis is the structured output for one batch. Every field is optional;
// SentimentScore uses a pointer because 0 is a valid score.
type Analysis struct {
	Alerts         []Finding `json:"alerts"`
	Summary        *string   `json:"summary"`
	SentimentScore *float64  `json:"sentiment_score"`
}

// Client analyzes one batch per call.
type Client interface {
	Analyze(ctx context.Context, req *Request) (*Analysis, error)
}

// Config holds analysis service settings, passed at construction so the
// dependency is testable via injection.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	RPS     int
}

const apiKeyMock = "mock"

// New returns the HTTP client, or the mock when no API key is configured.
func New(cfg Config, logger *zerolog.Logger) Client {
	if cfg.APIKey == "" || strings.EqualFold(cfg.APIKey, apiKeyMock) {
		return &mockClient{}
	}

	return newHTTPClient(cfg, logger)
}
