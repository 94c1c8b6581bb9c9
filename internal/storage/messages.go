package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
)

const messageColumns = `id, group_id, organization_id, author_hash, content_text,
	message_ts, batch_id, created_at`

// UnbatchedMessages returns messages for a group that have not been tagged
// into a batch yet, limited to those at or before cutoff, in ascending
// timestamp order.
func (db *DB) UnbatchedMessages(ctx context.Context, groupID string, cutoff time.Time, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE group_id = $1 AND batch_id IS NULL AND message_ts <= $2
		ORDER BY message_ts ASC
		LIMIT $3
	`, groupID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("unbatched messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MessagesForBatch returns the batch's tagged messages in ascending
// timestamp order.
func (db *DB) MessagesForBatch(ctx context.Context, batchID string) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE batch_id = $1
		ORDER BY message_ts ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("messages for batch: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message

	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID,
			&m.GroupID,
			&m.OrganizationID,
			&m.AuthorHash,
			&m.ContentText,
			&m.MessageTS,
			&m.BatchID,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// CreateBatch inserts a batch row spanning the given messages and tags
// exactly those messages with the new batch id, in one transaction. The
// span and count are computed from the selected set; messages that arrive
// after selection stay unbatched for the next cycle. The batch_id IS NULL
// guard on the update keeps a message from ever being re-tagged.
func (db *DB) CreateBatch(ctx context.Context, orgID, groupID string, msgs []domain.Message) (*domain.MessageBatch, error) {
	if len(msgs) == 0 {
		return nil, errs.ErrNoMessages
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	// Selection is timestamp-ascending, so the span is first..last.
	startTS := msgs[0].MessageTS
	endTS := msgs[len(msgs)-1].MessageTS

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create batch: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &domain.MessageBatch{
		OrganizationID: orgID,
		GroupID:        groupID,
		Status:         domain.BatchPending,
		StartTS:        startTS,
		EndTS:          endTS,
		MessageCount:   len(msgs),
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO message_batches (organization_id, group_id, status, start_ts, end_ts, message_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, orgID, groupID, domain.BatchPending, startTS, endTS, len(msgs)).Scan(&batch.ID, &batch.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET batch_id = $1
		WHERE id = ANY($2) AND batch_id IS NULL
	`, batch.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("tag batch messages: %w", err)
	}

	if tag.RowsAffected() != int64(len(ids)) {
		// A message was tagged by a concurrent batch between selection and
		// tagging. Roll back rather than create a batch whose span and count
		// no longer describe its message set.
		return nil, fmt.Errorf("tag batch messages: tagged %d of %d", tag.RowsAffected(), len(ids))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create batch: %w", err)
	}

	return batch, nil
}
