// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Server mode: health/metrics server with the HTTP batch trigger
//   - Scheduler mode: periodic batch creation, processing, and janitor sweep
//   - Dispatcher mode: delivery queue draining (email, WhatsApp)
//   - Process mode: one-shot batch processing for operators and cron
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/dispatch"
	"github.com/groupsense/groupsense/internal/intelligence"
	"github.com/groupsense/groupsense/internal/pipeline"
	"github.com/groupsense/groupsense/internal/platform/config"
	"github.com/groupsense/groupsense/internal/platform/observability"
	"github.com/groupsense/groupsense/internal/scheduler"
	"github.com/groupsense/groupsense/internal/server"
	db "github.com/groupsense/groupsense/internal/storage"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server with the
// batch trigger endpoint mounted.
func (a *App) StartHealthServer(ctx context.Context) error {
	trigger := server.NewTriggerHandler(a.newProcessor(), a.logger)

	return observability.NewServerWithTrigger(a.database, a.cfg.HealthPort, trigger, a.logger).Start(ctx)
}

// RunServer keeps the process alive for the health/trigger server, which the
// entrypoint runs in the background for every mode.
func (a *App) RunServer(ctx context.Context) error {
	a.logger.Info().Int("port", a.cfg.HealthPort).Msg("serving batch trigger")

	<-ctx.Done()

	return fmt.Errorf("server mode: %w", ctx.Err())
}

// RunScheduler runs batch creation and processing on a tick, with the stale
// batch sweep on the secondary tick.
func (a *App) RunScheduler(ctx context.Context) error {
	return scheduler.New(a.cfg, a.database, a.newProcessor(), a.logger).Run(ctx)
}

// RunDispatcher drains the delivery queue.
func (a *App) RunDispatcher(ctx context.Context) error {
	email := dispatch.NewEmailSender(a.cfg, a.logger)
	whatsapp := dispatch.NewWhatsAppSender(a.cfg, a.logger)

	return dispatch.New(a.cfg, a.database, email, whatsapp, a.logger).Run(ctx)
}

// RunProcessOnce processes pending batches and exits: the oldest batch when
// once is set, the whole backlog otherwise.
func (a *App) RunProcessOnce(ctx context.Context, once bool) error {
	proc := a.newProcessor()

	for {
		batch, err := proc.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, errs.ErrNoPendingBatch) {
				a.logger.Info().Msg("no pending batches")

				return nil
			}

			if errors.Is(err, errs.ErrBatchClaimed) {
				continue
			}

			return err
		}

		a.logger.Info().Str("batch_id", batch.ID).Msg("batch processed")

		if once {
			return nil
		}
	}
}

func (a *App) newProcessor() *pipeline.Processor {
	intel := intelligence.New(intelligence.Config{
		BaseURL: a.cfg.IntelBaseURL,
		APIKey:  a.cfg.IntelAPIKey,
		Model:   a.cfg.IntelModel,
		Timeout: a.cfg.IntelTimeout,
		RPS:     a.cfg.IntelRPS,
	}, a.logger)

	return pipeline.New(a.cfg, a.database, intel, a.logger)
}
