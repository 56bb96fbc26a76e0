package repository

import (
	"context"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) ListKeywords(ctx context.Context, activeOnly bool) ([]models.Keyword, error) {
	query := "SELECT id, word, is_active, created_at FROM keywords"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY word"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []models.Keyword
	for rows.Next() {
		var k models.Keyword
		if err := rows.Scan(&k.ID, &k.Word, &k.IsActive, &k.CreatedAt); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// CreateKeyword inserts a keyword; re-adding an existing word reactivates it.
func (r *Repository) CreateKeyword(ctx context.Context, word string) (*models.Keyword, error) {
	var k models.Keyword
	err := r.db.QueryRow(ctx, `
		INSERT INTO keywords (word) VALUES ($1)
		ON CONFLICT (word) DO UPDATE SET is_active = TRUE
		RETURNING id, word, is_active, created_at`, word).
		Scan(&k.ID, &k.Word, &k.IsActive, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *Repository) UpdateKeyword(ctx context.Context, id int64, word string, isActive bool) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE keywords SET word = $2, is_active = $3 WHERE id = $1", id, word, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteKeyword(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM keywords WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
