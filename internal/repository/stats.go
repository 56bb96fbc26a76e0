package repository

import (
	"context"

	"vkwatch/internal/models"
)

// GetDashboardStats builds the aggregate payload for the dashboard landing
// page. Individual failures zero out their widget rather than failing the
// whole response.
func (r *Repository) GetDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{TasksByStatus: map[string]int64{}}

	var err error
	if stats.Groups, err = r.CountGroups(ctx); err != nil {
		return nil, err
	}
	if stats.Posts, err = r.CountPosts(ctx); err != nil {
		return nil, err
	}
	if stats.Comments, err = r.CountComments(ctx); err != nil {
		return nil, err
	}
	if stats.Notifications, err = r.CountNotifications(ctx); err != nil {
		stats.Notifications = 0
	}

	r.db.QueryRow(ctx, "SELECT COUNT(*) FROM groups WHERE monitored").Scan(&stats.MonitoredGroups)
	r.db.QueryRow(ctx, "SELECT COUNT(*) FROM keywords WHERE is_active").Scan(&stats.Keywords)

	if byStatus, err := r.CountTasksByStatus(ctx); err == nil {
		stats.TasksByStatus = byStatus
	}

	if top, err := r.topGroups(ctx, 10); err == nil {
		stats.TopGroups = top
	}
	if daily, err := r.dailyCollected(ctx, 14); err == nil {
		stats.DailyCollected = daily
	}

	return stats, nil
}

func (r *Repository) topGroups(ctx context.Context, limit int) ([]models.GroupActivity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT g.id, g.name,
			COUNT(DISTINCT p.id) AS posts,
			COUNT(DISTINCT c.id) AS comments
		FROM groups g
		LEFT JOIN posts p ON p.group_id = g.id
		LEFT JOIN comments c ON c.group_id = g.id
		GROUP BY g.id, g.name
		ORDER BY posts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GroupActivity
	for rows.Next() {
		var a models.GroupActivity
		if err := rows.Scan(&a.GroupID, &a.Name, &a.Posts, &a.Comments); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) dailyCollected(ctx context.Context, days int) ([]models.DailyCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d.day,
			COALESCE(p.n, 0) AS posts,
			COALESCE(c.n, 0) AS comments
		FROM generate_series(
			date_trunc('day', NOW()) - ($1 - 1) * INTERVAL '1 day',
			date_trunc('day', NOW()),
			INTERVAL '1 day') AS d(day)
		LEFT JOIN (
			SELECT date_trunc('day', collected_at) AS day, COUNT(*) AS n
			FROM posts GROUP BY 1
		) p ON p.day = d.day
		LEFT JOIN (
			SELECT date_trunc('day', collected_at) AS day, COUNT(*) AS n
			FROM comments GROUP BY 1
		) c ON c.day = d.day
		ORDER BY d.day`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DailyCount
	for rows.Next() {
		var d models.DailyCount
		if err := rows.Scan(&d.Day, &d.Posts, &d.Comments); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
