package repository

import (
	"context"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

// InsertNotification records a keyword match. Duplicate (keyword, comment)
// pairs are ignored; returns the new id or 0 when already recorded.
func (r *Repository) InsertNotification(ctx context.Context, groupID, keywordID, commentID int64) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (group_id, keyword_id, comment_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (keyword_id, comment_id) DO NOTHING
		RETURNING id`, groupID, keywordID, commentID).Scan(&id)
	if err == pgx.ErrNoRows {
		// ON CONFLICT DO NOTHING yields no row.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) MarkNotificationDelivered(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		"UPDATE notifications SET delivered = TRUE, delivered_at = NOW() WHERE id = $1", id)
	return err
}

func (r *Repository) ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT n.id, n.group_id, n.keyword_id, k.word, n.comment_id, c.text,
			n.delivered, n.delivered_at, n.created_at
		FROM notifications n
		JOIN keywords k ON k.id = n.keyword_id
		JOIN comments c ON c.id = n.comment_id
		ORDER BY n.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.GroupID, &n.KeywordID, &n.Keyword, &n.CommentID,
			&n.CommentText, &n.Delivered, &n.DeliveredAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *Repository) CountNotifications(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notifications").Scan(&n)
	return n, err
}

// LookupAPIKey returns the key name for a SHA-256 hash, or "" when unknown.
func (r *Repository) LookupAPIKey(ctx context.Context, keyHash string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx,
		"SELECT name FROM api_keys WHERE key_hash = $1", keyHash).Scan(&name)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}
