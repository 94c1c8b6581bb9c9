// Package dispatch drains the delivery queue: it claims pending items,
// decodes their payloads, and hands them to the configured email and
// WhatsApp senders.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/platform/config"
	"github.com/groupsense/groupsense/internal/platform/observability"
	"github.com/groupsense/groupsense/internal/platform/worker"
	db "github.com/groupsense/groupsense/internal/storage"
)

// Queue is the persistence surface the dispatcher needs.
type Queue interface {
	PendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryItem, error)
	ClaimDelivery(ctx context.Context, id string) (bool, error)
	MarkDeliverySent(ctx context.Context, id string) error
	MarkDeliveryFailed(ctx context.Context, id, errMsg string, maxAttempts int) error
}

var _ Queue = (*db.DB)(nil)

// EmailSender delivers one email payload.
type EmailSender interface {
	SendEmail(ctx context.Context, p *domain.EmailPayload) error
}

// WhatsAppSender delivers one WhatsApp payload.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, p *domain.WhatsAppPayload) error
}

// Dispatcher polls the delivery queue and sends claimed items.
type Dispatcher struct {
	cfg      *config.Config
	queue    Queue
	email    EmailSender
	whatsapp WhatsAppSender
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

func New(cfg *config.Config, queue Queue, email EmailSender, whatsapp WhatsAppSender, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		queue:    queue,
		email:    email,
		whatsapp: whatsapp,
		limiter:  rate.NewLimiter(rate.Limit(cfg.DispatchRPS), 1),
		logger:   logger,
	}
}

// Run blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         "dispatcher",
		PollInterval: d.cfg.DispatchPollInterval,
		Process:      d.Drain,
		Logger:       d.logger,
	})
}

// Drain sends one page of pending deliveries. Send failures are recorded on
// the item and do not stop the page; only queue-level failures propagate.
func (d *Dispatcher) Drain(ctx context.Context) error {
	items, err := d.queue.PendingDeliveries(ctx, d.cfg.DispatchBatchSize)
	if err != nil {
		return fmt.Errorf("select pending deliveries: %w", err)
	}

	for i := range items {
		if ctx.Err() != nil {
			return nil
		}

		d.dispatch(ctx, &items[i])
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, item *domain.DeliveryItem) {
	// Rate-limit before claiming so a cancellation mid-wait leaves the item
	// pending rather than stuck in sending.
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	claimed, err := d.queue.ClaimDelivery(ctx, item.ID)
	if err != nil {
		d.logger.Error().Err(err).Str("delivery_id", item.ID).Msg("claim delivery")

		return
	}

	if !claimed {
		return
	}

	if err := d.send(ctx, item); err != nil {
		observability.DeliveriesSent.WithLabelValues(item.Type, "error").Inc()
		d.logger.Error().
			Err(err).
			Str("delivery_id", item.ID).
			Str("type", item.Type).
			Int("attempts", item.Attempts+1).
			Msg("delivery failed")

		if err := d.queue.MarkDeliveryFailed(ctx, item.ID, err.Error(), d.cfg.DispatchMaxAttempts); err != nil {
			d.logger.Error().Err(err).Str("delivery_id", item.ID).Msg("record delivery failure")
		}

		return
	}

	observability.DeliveriesSent.WithLabelValues(item.Type, "ok").Inc()

	if err := d.queue.MarkDeliverySent(ctx, item.ID); err != nil {
		d.logger.Error().Err(err).Str("delivery_id", item.ID).Msg("record delivery sent")
	}
}

func (d *Dispatcher) send(ctx context.Context, item *domain.DeliveryItem) error {
	switch item.Type {
	case domain.DeliveryEmail:
		var p domain.EmailPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}

		return d.email.SendEmail(ctx, &p)
	case domain.DeliveryWhatsApp:
		var p domain.WhatsAppPayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode whatsapp payload: %w", err)
		}

		return d.whatsapp.SendWhatsApp(ctx, &p)
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnknownDeliveryType, item.Type)
	}
}
