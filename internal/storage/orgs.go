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

// GroupContext assembles the group and organization fields needed for the
// analysis request payload.
func (db *DB) GroupContext(ctx context.Context, groupID string) (*domain.GroupContext, error) {
	var gc domain.GroupContext

	err := db.Pool.QueryRow(ctx, `
		SELECT g.id, g.name, g.preset_name, g.preset_description,
		       o.id, o.name, o.plan, o.whatsapp_alert_number
		FROM groups g
		JOIN organizations o ON o.id = g.organization_id
		WHERE g.id = $1
	`, groupID).Scan(
		&gc.GroupID,
		&gc.GroupName,
		&gc.PresetName,
		&gc.PresetDescription,
		&gc.OrganizationID,
		&gc.OrganizationName,
		&gc.OrganizationPlan,
		&gc.WhatsAppAlertTo,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrGroupNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("group context: %w", err)
	}

	return &gc, nil
}

// OrgAdmins returns the organization's admin users that have a resolvable
// email address.
func (db *DB) OrgAdmins(ctx context.Context, orgID string) ([]domain.Admin, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, email
		FROM users
		WHERE organization_id = $1 AND role = 'admin' AND email <> ''
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("org admins: %w", err)
	}
	defer rows.Close()

	var admins []domain.Admin

	for rows.Next() {
		var a domain.Admin
		if err := rows.Scan(&a.ID, &a.Email); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}

		admins = append(admins, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}

	return admins, nil
}

// GroupBacklog describes a group's unbatched backlog together with the
// group's configured quiet window.
type GroupBacklog struct {
	GroupID            string
	OrganizationID     string
	Unbatched          int
	NewestMessageTS    time.Time
	QuietWindowSeconds int
}

// GroupBacklogs returns every group with unbatched messages: backlog size,
// the newest unbatched timestamp, and the group's quiet window (0 means the
// group uses the global default). Deciding which backlogs are due is the
// scheduler's call.
func (db *DB) GroupBacklogs(ctx context.Context) ([]GroupBacklog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.group_id, m.organization_id, COUNT(*) AS unbatched,
		       MAX(m.message_ts) AS newest_ts, g.quiet_window_seconds
		FROM messages m
		JOIN groups g ON g.id = m.group_id
		WHERE m.batch_id IS NULL
		GROUP BY m.group_id, m.organization_id, g.quiet_window_seconds
	`)
	if err != nil {
		return nil, fmt.Errorf("group backlogs: %w", err)
	}
	defer rows.Close()

	var backlogs []GroupBacklog

	for rows.Next() {
		var b GroupBacklog
		if err := rows.Scan(&b.GroupID, &b.OrganizationID, &b.Unbatched, &b.NewestMessageTS, &b.QuietWindowSeconds); err != nil {
			return nil, fmt.Errorf("scan group backlog: %w", err)
		}

		backlogs = append(backlogs, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group backlogs: %w", err)
	}

	return backlogs, nil
}
