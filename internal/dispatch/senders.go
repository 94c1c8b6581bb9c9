package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/platform/config"
)

const (
	senderTimeout   = 30 * time.Second
	maxErrorBodyLen = 1024

	emailSendPath    = "/v1/send"
	whatsappSendPath = "/v1/messages"
)

// relayClient posts JSON documents to an HTTP relay with bearer auth.
// Both senders are thin wrappers over it.
type relayClient struct {
	url    string
	apiKey string
	client *http.Client
	logger *zerolog.Logger
}

func (r *relayClient) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		r.logger.Error().
			Int("status", resp.StatusCode).
			Str("url", r.url).
			// The byte limit can cut a rune in half.
			Str("body", strings.ToValidUTF8(string(respBody), "")).
			Msg("relay error")

		return fmt.Errorf("%w: %d", errs.ErrSenderStatus, resp.StatusCode)
	}

	return nil
}

type emailSender struct {
	relay relayClient
}

// NewEmailSender returns an EmailSender posting to the configured email
// relay, or a logging no-op sender when no relay URL is configured.
func NewEmailSender(cfg *config.Config, logger *zerolog.Logger) EmailSender {
	if cfg.EmailRelayURL == "" {
		logger.Warn().Msg("email relay not configured, deliveries are logged only")

		return &noopSender{logger: logger, channel: domain.DeliveryEmail}
	}

	return &emailSender{relay: relayClient{
		url:    cfg.EmailRelayURL + emailSendPath,
		apiKey: cfg.EmailRelayKey,
		client: &http.Client{Timeout: senderTimeout},
		logger: logger,
	}}
}

func (s *emailSender) SendEmail(ctx context.Context, p *domain.EmailPayload) error {
	return s.relay.post(ctx, p)
}

type whatsappSender struct {
	relay relayClient
}

// NewWhatsAppSender returns a WhatsAppSender posting to the configured
// WhatsApp API, or a logging no-op sender when no API URL is configured.
func NewWhatsAppSender(cfg *config.Config, logger *zerolog.Logger) WhatsAppSender {
	if cfg.WhatsAppAPIURL == "" {
		logger.Warn().Msg("whatsapp api not configured, deliveries are logged only")

		return &noopSender{logger: logger, channel: domain.DeliveryWhatsApp}
	}

	return &whatsappSender{relay: relayClient{
		url:    cfg.WhatsAppAPIURL + whatsappSendPath,
		apiKey: cfg.WhatsAppAPIKey,
		client: &http.Client{Timeout: senderTimeout},
		logger: logger,
	}}
}

func (s *whatsappSender) SendWhatsApp(ctx context.Context, p *domain.WhatsAppPayload) error {
	return s.relay.post(ctx, p)
}

// noopSender logs instead of sending, for environments without relay
// credentials.
type noopSender struct {
	logger  *zerolog.Logger
	channel string
}

func (s *noopSender) SendEmail(_ context.Context, p *domain.EmailPayload) error {
	s.logger.Info().Str("channel", s.channel).Str("to", p.To).Str("subject", p.Subject).Msg("delivery skipped")

	return nil
}

func (s *noopSender) SendWhatsApp(_ context.Context, p *domain.WhatsAppPayload) error {
	s.logger.Info().Str("channel", s.channel).Str("to", p.To).Msg("delivery skipped")

	return nil
}
