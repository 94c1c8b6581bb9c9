package db

import (
	"context"
	"fmt"

	"github.com/groupsense/groupsense/internal/core/domain"
)

// InsertAlerts bulk-inserts alerts and returns the inserted rows with their
// generated ids. Severity defaults to medium and status to open when unset.
func (db *DB) InsertAlerts(ctx context.Context, alerts []domain.Alert) ([]domain.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert alerts: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	inserted := make([]domain.Alert, len(alerts))

	for i, a := range alerts {
		if a.Severity == "" {
			a.Severity = domain.SeverityMedium
		}

		if a.Status == "" {
			a.Status = domain.AlertStatusOpen
		}

		a.IsRead = false

		err = tx.QueryRow(ctx, `
			INSERT INTO alerts (organization_id, group_id, batch_id, title, summary, severity, status, evidence_excerpt, is_read)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at
		`, a.OrganizationID, a.GroupID, a.BatchID, a.Title, a.Summary, a.Severity, a.Status, a.EvidenceExcerpt, a.IsRead).
			Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert alert %q: %w", a.Title, err)
		}

		inserted[i] = a
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert alerts: %w", err)
	}

	return inserted, nil
}

// InsertSummary persists one summary row for a batch.
func (db *DB) InsertSummary(ctx context.Context, s *domain.Summary) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO summaries (organization_id, group_id, batch_id, summary_text, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, created_at
	`, s.OrganizationID, s.GroupID, s.BatchID, s.SummaryText).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	return nil
}
