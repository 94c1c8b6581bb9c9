package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/groupsense/groupsense/internal/core/domain"
)

const deliveryColumns = `id, type, payload, status, attempts, last_error,
	created_at, updated_at, sent_at`

// EnqueueDelivery appends an outbound message to the delivery queue with
// status pending. The writer never waits for the send; draining is the
// dispatcher's job.
func (db *DB) EnqueueDelivery(ctx context.Context, item *domain.DeliveryItem) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO delivery_queue (type, payload, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, item.Type, item.Payload, domain.DeliveryPending).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}

	item.Status = domain.DeliveryPending

	return nil
}

// PendingDeliveries returns the oldest pending queue items, FIFO.
func (db *DB) PendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM delivery_queue
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.DeliveryPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending deliveries: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func collectDeliveries(rows pgx.Rows) ([]domain.DeliveryItem, error) {
	var items []domain.DeliveryItem

	for rows.Next() {
		var d domain.DeliveryItem
		if err := rows.Scan(
			&d.ID,
			&d.Type,
			&d.Payload,
			&d.Status,
			&d.Attempts,
			&d.LastError,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery item: %w", err)
		}

		items = append(items, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery items: %w", err)
	}

	return items, nil
}

// ClaimDelivery transitions a pending item to sending and bumps the
// attempt counter. Same conditional-update idiom as ClaimBatch: zero rows
// affected means another dispatcher took it.
func (db *DB) ClaimDelivery(ctx context.Context, id string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE delivery_queue
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, domain.DeliverySending, id, domain.DeliveryPending)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkDeliverySent records a successful send.
func (db *DB) MarkDeliverySent(ctx context.Context, id string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE delivery_queue
		SET status = $1, sent_at = now(), updated_at = now(), last_error = NULL
		WHERE id = $2
	`, domain.DeliverySent, id); err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}

	return nil
}

// MarkDeliveryFailed records a failed attempt. Items under the attempt cap
// go back to pending for a later retry; the rest stay failed.
func (db *DB) MarkDeliveryFailed(ctx context.Context, id, errMsg string, maxAttempts int) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE delivery_queue
		SET status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END,
		    last_error = $4,
		    updated_at = now()
		WHERE id = $5
	`, maxAttempts, domain.DeliveryFailed, domain.DeliveryPending, errMsg, id); err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}

	return nil
}
