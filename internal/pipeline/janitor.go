package pipeline

import (
	"context"

	"github.com/groupsense/groupsense/internal/platform/observability"
)

// SweepStale re-queues batches stuck in processing longer than the
// configured stale threshold. A crash between claim and finalize otherwise
// leaves the batch locked forever; the threshold comfortably exceeds the
// analysis timeout plus the fan-out writes, so a live invocation is never
// re-claimed.
func (p *Processor) SweepStale(ctx context.Context) error {
	requeued, err := p.database.RequeueStaleBatches(ctx, p.cfg.BatchStaleAfter)
	if err != nil {
		return err
	}

	if requeued > 0 {
		observability.StaleBatchesRequeued.Add(float64(requeued))
		p.logger.Warn().Int64("requeued", requeued).Msg("re-queued stale processing batches")
	}

	return nil
}

// UpdateBacklogGauge refreshes the pending batch gauge.
func (p *Processor) UpdateBacklogGauge(ctx context.Context) {
	count, err := p.database.PendingBatchCount(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("pending batch count failed")

		return
	}

	observability.PendingBatches.Set(float64(count))
}
