// Package scheduler turns quiet or full message backlogs into batches and
// drains the pending queue on a fixed tick.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/platform/config"
	"github.com/groupsense/groupsense/internal/platform/worker"
	db "github.com/groupsense/groupsense/internal/storage"
)

// GroupSource lists groups with unbatched messages.
type GroupSource interface {
	GroupBacklogs(ctx context.Context) ([]db.GroupBacklog, error)
}

// BatchProcessor is the slice of the pipeline the scheduler drives.
type BatchProcessor interface {
	CreateBatchForGroup(ctx context.Context, orgID, groupID string) (*domain.MessageBatch, error)
	ProcessNext(ctx context.Context) (*domain.MessageBatch, error)
	SweepStale(ctx context.Context) error
	UpdateBacklogGauge(ctx context.Context)
}

// Scheduler runs batch creation and processing on the main ticker and the
// janitor sweep on the secondary ticker.
type Scheduler struct {
	cfg    *config.Config
	groups GroupSource
	proc   BatchProcessor
	logger *zerolog.Logger
}

func New(cfg *config.Config, groups GroupSource, proc BatchProcessor, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		groups: groups,
		proc:   proc,
		logger: logger,
	}
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:              "scheduler",
		Interval:          s.cfg.SchedulerInterval,
		OnTick:            s.Tick,
		RunOnStart:        true,
		SecondaryInterval: s.cfg.JanitorInterval,
		OnSecondaryTick:   s.janitorTick,
		Logger:            s.logger,
	})
}

// Tick creates batches for every due group, then processes pending batches
// until the queue is empty. Per-group and per-batch failures are logged and
// do not stop the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	defer worker.RecoverPanic(s.logger, "scheduler tick")

	s.createDueBatches(ctx)
	s.drainPending(ctx)
	s.proc.UpdateBacklogGauge(ctx)
}

func (s *Scheduler) createDueBatches(ctx context.Context) {
	backlogs, err := s.groups.GroupBacklogs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list group backlogs")

		return
	}

	now := time.Now()

	for _, g := range backlogs {
		if ctx.Err() != nil {
			return
		}

		if !backlogDue(g, now, s.cfg.BatchQuietWindow, s.cfg.BatchMaxMessages) {
			continue
		}

		if _, err := s.proc.CreateBatchForGroup(ctx, g.OrganizationID, g.GroupID); err != nil {
			// Another scheduler may have batched the backlog between the
			// due-group query and here.
			if errors.Is(err, errs.ErrNoMessages) {
				continue
			}

			s.logger.Error().Err(err).Str("group_id", g.GroupID).Msg("create batch")
		}
	}
}

// backlogDue reports whether a group's backlog should become a batch: the
// backlog reached the size cap, or the group has gone quiet for its own
// window (the global one when the group has none configured).
func backlogDue(b db.GroupBacklog, now time.Time, quietFallback time.Duration, maxBatch int) bool {
	if b.Unbatched >= maxBatch {
		return true
	}

	quiet := quietFallback
	if b.QuietWindowSeconds > 0 {
		quiet = time.Duration(b.QuietWindowSeconds) * time.Second
	}

	return now.Sub(b.NewestMessageTS) >= quiet
}

func (s *Scheduler) drainPending(ctx context.Context) {
	for ctx.Err() == nil {
		_, err := s.proc.ProcessNext(ctx)
		if err == nil {
			continue
		}

		if errors.Is(err, errs.ErrNoPendingBatch) {
			return
		}

		// A lost claim means another processor is draining the same queue;
		// keep going, the next selection skips the claimed batch.
		if errors.Is(err, errs.ErrBatchClaimed) {
			continue
		}

		// Failed batches are finalized as error, so the remaining backlog is
		// picked up on the next tick rather than risking a tight loop when
		// the failure is infrastructural.
		s.logger.Error().Err(err).Msg("process batch")

		return
	}
}

func (s *Scheduler) janitorTick(ctx context.Context) {
	defer worker.RecoverPanic(s.logger, "janitor sweep")

	if err := s.proc.SweepStale(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sweep stale batches")
	}
}
