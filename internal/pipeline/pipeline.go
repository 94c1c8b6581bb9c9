// Package pipeline owns the batch lifecycle: selecting unbatched messages
// into batches, claiming a batch for processing, running the analysis call,
// fanning the output into derived records, and finalizing the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/intelligence"
	"github.com/groupsense/groupsense/internal/platform/config"
	"github.com/groupsense/groupsense/internal/platform/observability"
	db "github.com/groupsense/groupsense/internal/storage"
)

// Repository is the persistence surface the pipeline needs.
type Repository interface {
	OldestPendingBatch(ctx context.Context) (*domain.MessageBatch, error)
	BatchByID(ctx context.Context, id string) (*domain.MessageBatch, error)
	ClaimBatch(ctx context.Context, id string) (bool, error)
	FinalizeBatchDone(ctx context.Context, id string) error
	FinalizeBatchError(ctx context.Context, id, errMsg string) error
	RequeueStaleBatches(ctx context.Context, olderThan time.Duration) (int64, error)
	PendingBatchCount(ctx context.Context) (int, error)

	UnbatchedMessages(ctx context.Context, groupID string, cutoff time.Time, limit int) ([]domain.Message, error)
	CreateBatch(ctx context.Context, orgID, groupID string, msgs []domain.Message) (*domain.MessageBatch, error)
	MessagesForBatch(ctx context.Context, batchID string) ([]domain.Message, error)

	GroupContext(ctx context.Context, groupID string) (*domain.GroupContext, error)
	OrgAdmins(ctx context.Context, orgID string) ([]domain.Admin, error)

	InsertAlerts(ctx context.Context, alerts []domain.Alert) ([]domain.Alert, error)
	InsertSummary(ctx context.Context, s *domain.Summary) error
	UpsertGroupAnalytics(ctx context.Context, ga *domain.GroupAnalytics) error
	EnqueueDelivery(ctx context.Context, item *domain.DeliveryItem) error
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

// Processor runs the batch lifecycle end to end.
type Processor struct {
	cfg      *config.Config
	database Repository
	intel    intelligence.Client
	logger   *zerolog.Logger
}

func New(cfg *config.Config, database Repository, intel intelligence.Client, logger *zerolog.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		database: database,
		intel:    intel,
		logger:   logger,
	}
}

// ProcessNext claims and processes the oldest pending batch.
// Returns errs.ErrNoPendingBatch when there is nothing to do and
// errs.ErrBatchClaimed when a concurrent invocation won the claim; both are
// expected no-op outcomes, not failures.
func (p *Processor) ProcessNext(ctx context.Context) (*domain.MessageBatch, error) {
	batch, err := p.database.OldestPendingBatch(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrNoPendingBatch) {
			return nil, err
		}

		return nil, fmt.Errorf("select next batch: %w", err)
	}

	return batch, p.process(ctx, batch)
}

// ProcessBatch processes one explicitly targeted batch, which must still be
// pending.
func (p *Processor) ProcessBatch(ctx context.Context, id string) (*domain.MessageBatch, error) {
	batch, err := p.database.BatchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if batch.Status != domain.BatchPending {
		return batch, fmt.Errorf("%w: batch %s is %s", errs.ErrBatchNotPending, batch.ID, batch.Status)
	}

	return batch, p.process(ctx, batch)
}

// process runs one batch through claim, analysis, fan-out, and finalize.
//
// Failure handling is deliberately asymmetric: selection, context-fetch, and
// analysis failures are fatal for the batch, while individual fan-out write
// failures are logged and swallowed. A partial result is strictly better
// than discarding everything, and the analysis call is the only step worth
// re-running.
func (p *Processor) process(ctx context.Context, batch *domain.MessageBatch) error {
	start := time.Now()

	claimed, err := p.database.ClaimBatch(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("claim batch %s: %w", batch.ID, err)
	}

	if !claimed {
		observability.BatchClaimLost.Inc()
		p.logger.Info().Str("batch_id", batch.ID).Msg("batch claimed by another processor")

		return errs.ErrBatchClaimed
	}

	// Context-fetch failures leave the batch in processing; the janitor
	// re-queues it after the stale threshold.
	gctx, err := p.database.GroupContext(ctx, batch.GroupID)
	if err != nil {
		return fmt.Errorf("group context for batch %s: %w", batch.ID, err)
	}

	msgs, err := p.database.MessagesForBatch(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("messages for batch %s: %w", batch.ID, err)
	}

	analysis, err := p.intel.Analyze(ctx, buildRequest(batch, gctx, msgs))
	if err != nil {
		p.finalizeError(ctx, batch.ID, err)

		return fmt.Errorf("analyze batch %s: %w", batch.ID, err)
	}

	p.fanOut(ctx, batch, gctx, analysis)

	if err := p.database.FinalizeBatchDone(ctx, batch.ID); err != nil {
		return fmt.Errorf("finalize batch %s: %w", batch.ID, err)
	}

	observability.BatchesProcessed.WithLabelValues(string(domain.BatchDone)).Inc()
	observability.BatchDurationSeconds.Observe(time.Since(start).Seconds())

	p.logger.Info().
		Str("batch_id", batch.ID).
		Str("group_id", batch.GroupID).
		Int("messages", batch.MessageCount).
		Dur("duration", time.Since(start)).
		Msg("batch processed")

	return nil
}

func (p *Processor) finalizeError(ctx context.Context, batchID string, cause error) {
	if err := p.database.FinalizeBatchError(ctx, batchID, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to record batch error")

		return
	}

	observability.BatchesProcessed.WithLabelValues(string(domain.BatchError)).Inc()
}

// CreateBatchForGroup selects the group's unbatched messages up to now and
// turns them into one pending batch.
func (p *Processor) CreateBatchForGroup(ctx context.Context, orgID, groupID string) (*domain.MessageBatch, error) {
	msgs, err := p.database.UnbatchedMessages(ctx, groupID, time.Now(), p.cfg.BatchMaxMessages)
	if err != nil {
		return nil, fmt.Errorf("select unbatched messages: %w", err)
	}

	if len(msgs) == 0 {
		return nil, errs.ErrNoMessages
	}

	batch, err := p.database.CreateBatch(ctx, orgID, groupID, msgs)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	observability.BatchesCreated.Inc()

	p.logger.Info().
		Str("batch_id", batch.ID).
		Str("group_id", groupID).
		Int("messages", batch.MessageCount).
		Msg("batch created")

	return batch, nil
}

func buildRequest(batch *domain.MessageBatch, gctx *domain.GroupContext, msgs []domain.Message) *intelligence.Request {
	reqMsgs := make([]intelligence.RequestMessage, len(msgs))

	for i, m := range msgs {
		reqMsgs[i] = intelligence.RequestMessage{
			ID:        m.ID,
			Author:    m.AuthorHash,
			Text:      m.ContentText,
			Timestamp: m.MessageTS.UTC().Format(time.RFC3339),
		}
	}

	return &intelligence.Request{
		BatchID:        batch.ID,
		OrganizationID: batch.OrganizationID,
		GroupName:      gctx.GroupName,
		AgentPreset: intelligence.AgentPreset{
			Name:        gctx.PresetName,
			Description: gctx.PresetDescription,
		},
		OrganizationContext: intelligence.OrganizationContext{
			Name: gctx.OrganizationName,
			Plan: gctx.OrganizationPlan,
		},
		Messages: reqMsgs,
	}
}
