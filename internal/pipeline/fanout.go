package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"unicode/utf8"

	"github.com/groupsense/groupsense/internal/core/domain"
	"github.com/groupsense/groupsense/internal/intelligence"
	"github.com/groupsense/groupsense/internal/platform/observability"
)

const (
	fanoutStepAlerts    = "alerts"
	fanoutStepNotify    = "notifications"
	fanoutStepSummary   = "summary"
	fanoutStepAnalytics = "analytics"

	emailTypeUrgentAlert = "urgent_alert"
	maxEvidenceExcerpt   = 500
)

// fanOut writes alerts, notifications, a summary, and an analytics upsert
// from one analysis result. Each step fails independently: a failed write is
// logged and counted, and the remaining steps still run.
func (p *Processor) fanOut(ctx context.Context, batch *domain.MessageBatch, gctx *domain.GroupContext, analysis *intelligence.Analysis) {
	inserted := p.persistAlerts(ctx, batch, analysis.Alerts)

	p.notifyUrgent(ctx, gctx, inserted)

	p.persistSummary(ctx, batch, analysis.Summary)

	p.persistAnalytics(ctx, batch, analysis.SentimentScore, len(inserted))
}

func (p *Processor) persistAlerts(ctx context.Context, batch *domain.MessageBatch, findings []intelligence.Finding) []domain.Alert {
	if len(findings) == 0 {
		return nil
	}

	alerts := make([]domain.Alert, len(findings))

	for i, f := range findings {
		alerts[i] = domain.Alert{
			OrganizationID:  batch.OrganizationID,
			GroupID:         batch.GroupID,
			BatchID:         batch.ID,
			Title:           f.Title,
			Summary:         f.Description,
			Severity:        normalizeSeverity(f.Severity),
			Status:          domain.AlertStatusOpen,
			EvidenceExcerpt: truncateExcerpt(f.Evidence),
		}
	}

	inserted, err := p.database.InsertAlerts(ctx, alerts)
	if err != nil {
		observability.FanoutStepFailures.WithLabelValues(fanoutStepAlerts).Inc()
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("alert insert failed")

		return nil
	}

	for _, a := range inserted {
		observability.AlertsPersisted.WithLabelValues(a.Severity).Inc()
	}

	return inserted
}

// notifyUrgent enqueues urgent notifications when the batch produced a
// high-severity alert. Only the first high-severity alert triggers
// notifications, so one noisy batch sends each admin a single email rather
// than one per alert. Failures here never affect the batch outcome.
func (p *Processor) notifyUrgent(ctx context.Context, gctx *domain.GroupContext, inserted []domain.Alert) {
	var urgent *domain.Alert

	for i := range inserted {
		if inserted[i].Severity == domain.SeverityHigh {
			urgent = &inserted[i]

			break
		}
	}

	if urgent == nil {
		return
	}

	admins, err := p.database.OrgAdmins(ctx, gctx.OrganizationID)
	if err != nil {
		observability.FanoutStepFailures.WithLabelValues(fanoutStepNotify).Inc()
		p.logger.Error().Err(err).Str("organization_id", gctx.OrganizationID).Msg("admin lookup failed")

		return
	}

	for _, admin := range admins {
		if err := p.enqueueAdminEmail(ctx, gctx, admin, urgent); err != nil {
			observability.FanoutStepFailures.WithLabelValues(fanoutStepNotify).Inc()
			p.logger.Error().Err(err).Str("admin_id", admin.ID).Msg("urgent email enqueue failed")
		}
	}

	if gctx.WhatsAppAlertTo != "" {
		if err := p.enqueueWhatsAppAlert(ctx, gctx, urgent); err != nil {
			observability.FanoutStepFailures.WithLabelValues(fanoutStepNotify).Inc()
			p.logger.Error().Err(err).Str("group_id", gctx.GroupID).Msg("urgent whatsapp enqueue failed")
		}
	}
}

func (p *Processor) enqueueAdminEmail(ctx context.Context, gctx *domain.GroupContext, admin domain.Admin, alert *domain.Alert) error {
	payload, err := json.Marshal(domain.EmailPayload{
		To:      admin.Email,
		Subject: fmt.Sprintf("Urgent alert in %s: %s", gctx.GroupName, alert.Title),
		HTMLContent: fmt.Sprintf("<p>A high-severity alert was raised in <b>%s</b>.</p><p><b>%s</b></p><p>%s</p>",
			html.EscapeString(gctx.GroupName), html.EscapeString(alert.Title), html.EscapeString(alert.Summary)),
		UserID:    admin.ID,
		EmailType: emailTypeUrgentAlert,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	return p.enqueue(ctx, domain.DeliveryEmail, payload)
}

func (p *Processor) enqueueWhatsAppAlert(ctx context.Context, gctx *domain.GroupContext, alert *domain.Alert) error {
	payload, err := json.Marshal(domain.WhatsAppPayload{
		To:   gctx.WhatsAppAlertTo,
		Type: "template",
		Template: &domain.WhatsAppTemplate{
			Name:     p.cfg.AlertTemplateName,
			Language: domain.WhatsAppLanguage{Code: p.cfg.AlertTemplateLang},
			Components: []domain.WhatsAppSection{
				{
					Type: "body",
					Parameters: []domain.WhatsAppParameter{
						{Type: "text", Text: gctx.GroupName},
						{Type: "text", Text: alert.Title},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	return p.enqueue(ctx, domain.DeliveryWhatsApp, payload)
}

func (p *Processor) enqueue(ctx context.Context, deliveryType string, payload []byte) error {
	item := &domain.DeliveryItem{
		Type:    deliveryType,
		Payload: payload,
	}

	if err := p.database.EnqueueDelivery(ctx, item); err != nil {
		return err
	}

	observability.DeliveriesEnqueued.WithLabelValues(deliveryType).Inc()

	return nil
}

func (p *Processor) persistSummary(ctx context.Context, batch *domain.MessageBatch, summary *string) {
	if summary == nil || *summary == "" {
		return
	}

	s := &domain.Summary{
		OrganizationID: batch.OrganizationID,
		GroupID:        batch.GroupID,
		BatchID:        batch.ID,
		SummaryText:    *summary,
	}

	if err := p.database.InsertSummary(ctx, s); err != nil {
		observability.FanoutStepFailures.WithLabelValues(fanoutStepSummary).Inc()
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("summary insert failed")
	}
}

// persistAnalytics upserts the per-period analytics row. The nil check is
// explicit because 0 is a valid sentiment score.
func (p *Processor) persistAnalytics(ctx context.Context, batch *domain.MessageBatch, sentiment *float64, alertCount int) {
	if sentiment == nil {
		return
	}

	ga := &domain.GroupAnalytics{
		GroupID:         batch.GroupID,
		PeriodStart:     batch.StartTS,
		PeriodEnd:       batch.EndTS,
		SentimentScore:  *sentiment,
		MessageCount:    batch.MessageCount,
		AlertCountTotal: alertCount,
	}

	if err := p.database.UpsertGroupAnalytics(ctx, ga); err != nil {
		observability.FanoutStepFailures.WithLabelValues(fanoutStepAnalytics).Inc()
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("analytics upsert failed")
	}
}

func normalizeSeverity(s string) string {
	switch s {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh:
		return s
	default:
		return domain.SeverityMedium
	}
}

// truncateExcerpt caps the evidence excerpt, stepping back to a rune
// boundary so the stored text stays valid UTF-8.
func truncateExcerpt(s string) string {
	if len(s) <= maxEvidenceExcerpt {
		return s
	}

	cut := maxEvidenceExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
