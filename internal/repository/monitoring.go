package repository

import (
	"context"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

const monitoringColumns = `group_id, enabled, interval_minutes, posts_depth,
	with_comments, webhook_url, last_run_at, updated_at`

func scanMonitoring(row pgx.Row) (*models.MonitoringSetting, error) {
	var m models.MonitoringSetting
	err := row.Scan(&m.GroupID, &m.Enabled, &m.IntervalMinutes, &m.PostsDepth,
		&m.WithComments, &m.WebhookURL, &m.LastRunAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) GetMonitoringSetting(ctx context.Context, groupID int64) (*models.MonitoringSetting, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+monitoringColumns+" FROM monitoring_settings WHERE group_id = $1", groupID)
	m, err := scanMonitoring(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *Repository) ListMonitoringSettings(ctx context.Context) ([]models.MonitoringSetting, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+monitoringColumns+" FROM monitoring_settings ORDER BY group_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []models.MonitoringSetting
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *m)
	}
	return settings, rows.Err()
}

// UpsertMonitoringSetting saves the per-group monitoring config and keeps
// groups.monitored in sync so group listings can filter cheaply.
func (r *Repository) UpsertMonitoringSetting(ctx context.Context, m *models.MonitoringSetting) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO monitoring_settings (group_id, enabled, interval_minutes, posts_depth, with_comments, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_minutes = EXCLUDED.interval_minutes,
			posts_depth = EXCLUDED.posts_depth,
			with_comments = EXCLUDED.with_comments,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = NOW()`,
		m.GroupID, m.Enabled, m.IntervalMinutes, m.PostsDepth, m.WithComments, m.WebhookURL)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		"UPDATE groups SET monitored = $2, updated_at = NOW() WHERE id = $1",
		m.GroupID, m.Enabled); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListDueMonitoring returns enabled settings whose interval has elapsed
// since the last run (or that never ran).
func (r *Repository) ListDueMonitoring(ctx context.Context) ([]models.MonitoringSetting, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+monitoringColumns+` FROM monitoring_settings
		WHERE enabled
		  AND (last_run_at IS NULL OR last_run_at + (interval_minutes || ' minutes')::interval <= NOW())
		ORDER BY last_run_at NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []models.MonitoringSetting
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *m)
	}
	return due, rows.Err()
}

func (r *Repository) TouchMonitoringRun(ctx context.Context, groupID int64) error {
	_, err := r.db.Exec(ctx,
		"UPDATE monitoring_settings SET last_run_at = NOW() WHERE group_id = $1", groupID)
	return err
}
