package db

import (
	"context"
	"fmt"

	"github.com/groupsense/groupsense/internal/core/domain"
)

// UpsertGroupAnalytics inserts or updates the analytics row keyed by
// (group_id, period_start, period_end). Re-processing the same period
// updates in place rather than duplicating, and repeating the same upsert
// is a no-op, so the step is safe to retry.
func (db *DB) UpsertGroupAnalytics(ctx context.Context, ga *domain.GroupAnalytics) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO group_analytics (group_id, period_start, period_end, sentiment_score, message_count, alert_count_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, period_start, period_end) DO UPDATE
		SET sentiment_score = EXCLUDED.sentiment_score,
		    message_count = EXCLUDED.message_count,
		    alert_count_total = EXCLUDED.alert_count_total,
		    updated_at = now()
	`, ga.GroupID, ga.PeriodStart, ga.PeriodEnd, ga.SentimentScore, ga.MessageCount, ga.AlertCountTotal)
	if err != nil {
		return fmt.Errorf("upsert group analytics: %w", err)
	}

	return nil
}
