package repository

import (
	"context"
	"time"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

// UpsertPosts saves a batch of wall posts atomically. Re-collection of the
// same posts refreshes the counters, so running collect twice is safe.
func (r *Repository) UpsertPosts(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range posts {
		_, err := tx.Exec(ctx, `
			INSERT INTO posts (vk_id, owner_id, group_id, from_id, text, posted_at,
				comments_count, likes_count, reposts_count, views_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (owner_id, vk_id) DO UPDATE SET
				text = EXCLUDED.text,
				comments_count = EXCLUDED.comments_count,
				likes_count = EXCLUDED.likes_count,
				reposts_count = EXCLUDED.reposts_count,
				views_count = EXCLUDED.views_count,
				collected_at = NOW()`,
			p.VkID, p.OwnerID, p.GroupID, p.FromID, p.Text, p.PostedAt,
			p.CommentsCount, p.LikesCount, p.RepostsCount, p.ViewsCount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// UpsertComments saves a batch of comments atomically.
func (r *Repository) UpsertComments(ctx context.Context, comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range comments {
		_, err := tx.Exec(ctx, `
			INSERT INTO comments (vk_id, post_vk_id, owner_id, group_id, from_id, text, posted_at, likes_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (owner_id, post_vk_id, vk_id) DO UPDATE SET
				text = EXCLUDED.text,
				likes_count = EXCLUDED.likes_count,
				collected_at = NOW()`,
			c.VkID, c.PostVkID, c.OwnerID, c.GroupID, c.FromID, c.Text, c.PostedAt, c.LikesCount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListPostsByGroup(ctx context.Context, groupID int64, limit, offset int) ([]models.Post, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, vk_id, owner_id, group_id, from_id, text, posted_at,
			comments_count, likes_count, reposts_count, views_count, collected_at
		FROM posts WHERE group_id = $1
		ORDER BY posted_at DESC LIMIT $2 OFFSET $3`, groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.VkID, &p.OwnerID, &p.GroupID, &p.FromID, &p.Text,
			&p.PostedAt, &p.CommentsCount, &p.LikesCount, &p.RepostsCount, &p.ViewsCount,
			&p.CollectedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *Repository) ListCommentsByGroup(ctx context.Context, groupID int64, limit, offset int) ([]models.Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, vk_id, post_vk_id, owner_id, group_id, from_id, text, posted_at, likes_count, collected_at
		FROM comments WHERE group_id = $1
		ORDER BY posted_at DESC LIMIT $2 OFFSET $3`, groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectComments(rows)
}

// SearchComments returns comments whose text matches the query,
// case-insensitive, newest first.
func (r *Repository) SearchComments(ctx context.Context, query string, limit, offset int) ([]models.Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, vk_id, post_vk_id, owner_id, group_id, from_id, text, posted_at, likes_count, collected_at
		FROM comments WHERE text ILIKE '%' || $1 || '%'
		ORDER BY posted_at DESC LIMIT $2 OFFSET $3`, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectComments(rows)
}

// CommentsCollectedSince returns comments first seen after the watermark for
// a group. The monitor matches keywords against this set only, so each
// comment is evaluated once.
func (r *Repository) CommentsCollectedSince(ctx context.Context, groupID int64, since time.Time) ([]models.Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, vk_id, post_vk_id, owner_id, group_id, from_id, text, posted_at, likes_count, collected_at
		FROM comments WHERE group_id = $1 AND collected_at > $2
		ORDER BY collected_at`, groupID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectComments(rows)
}

func collectComments(rows pgx.Rows) ([]models.Comment, error) {
	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.VkID, &c.PostVkID, &c.OwnerID, &c.GroupID,
			&c.FromID, &c.Text, &c.PostedAt, &c.LikesCount, &c.CollectedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *Repository) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM posts").Scan(&n)
	return n, err
}

func (r *Repository) CountComments(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM comments").Scan(&n)
	return n, err
}

// GroupsMissingComments lists group ids that have posts with comments on VK
// but none collected locally. Used by the backfill tool.
func (r *Repository) GroupsMissingComments(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT p.group_id FROM posts p
		LEFT JOIN comments c ON c.group_id = p.group_id
		WHERE p.comments_count > 0 AND c.id IS NULL
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
