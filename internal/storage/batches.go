package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
)

const batchColumns = `id, organization_id, group_id, status, start_ts, end_ts,
	message_count, locked_at, processed_at, error, created_at`

func scanBatch(row pgx.Row) (*domain.MessageBatch, error) {
	var b domain.MessageBatch

	err := row.Scan(
		&b.ID,
		&b.OrganizationID,
		&b.GroupID,
		&b.Status,
		&b.StartTS,
		&b.EndTS,
		&b.MessageCount,
		&b.LockedAt,
		&b.ProcessedAt,
		&b.Error,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// OldestPendingBatch returns the oldest batch still in the pending state.
// FIFO by creation time keeps early-queued work from starving.
func (db *DB) OldestPendingBatch(ctx context.Context) (*domain.MessageBatch, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM message_batches
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, domain.BatchPending)

	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNoPendingBatch
	}

	if err != nil {
		return nil, fmt.Errorf("oldest pending batch: %w", err)
	}

	return batch, nil
}

func (db *DB) BatchByID(ctx context.Context, id string) (*domain.MessageBatch, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM message_batches
		WHERE id = $1
	`, id)

	batch, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrBatchNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("batch by id: %w", err)
	}

	return batch, nil
}

// ClaimBatch atomically transitions a batch from pending to processing and
// stamps locked_at. The conditional update makes the claim race-free: under
// concurrent claims exactly one caller sees a row affected, every other
// caller gets claimed=false and must abort without touching the batch.
func (db *DB) ClaimBatch(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE message_batches
		SET status = $1, locked_at = now()
		WHERE id = $2 AND status = $3
	`, domain.BatchProcessing, id, domain.BatchPending)
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FinalizeBatchDone marks a processing batch done and clears any error.
// The status guard keeps terminal states sticky.
func (db *DB) FinalizeBatchDone(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE message_batches
		SET status = $1, processed_at = now(), error = NULL
		WHERE id = $2 AND status = $3
	`, domain.BatchDone, id, domain.BatchProcessing)
	if err != nil {
		return fmt.Errorf("finalize batch done: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.ErrBatchNotPending
	}

	return nil
}

// FinalizeBatchError marks a processing batch failed and records the error message.
func (db *DB) FinalizeBatchError(ctx context.Context, id, errMsg string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE message_batches
		SET status = $1, processed_at = now(), error = $2
		WHERE id = $3 AND status = $4
	`, domain.BatchError, errMsg, id, domain.BatchProcessing)
	if err != nil {
		return fmt.Errorf("finalize batch error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return errs.ErrBatchNotPending
	}

	return nil
}

// RequeueStaleBatches returns batches stuck in processing longer than
// olderThan back to pending so they can be claimed again. Returns the
// number of re-queued batches.
func (db *DB) RequeueStaleBatches(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE message_batches
		SET status = $1, locked_at = NULL
		WHERE status = $2 AND locked_at < now() - $3::interval
	`, domain.BatchPending, domain.BatchProcessing, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("requeue stale batches: %w", err)
	}

	return tag.RowsAffected(), nil
}

// PendingBatchCount returns the number of batches waiting for processing.
func (db *DB) PendingBatchCount(ctx context.Context) (int, error) {
	var count int
	if err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM message_batches WHERE status = $1
	`, domain.BatchPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("pending batch count: %w", err)
	}

	return count, nil
}
