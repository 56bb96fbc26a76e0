package repository

import (
	"context"
	"fmt"
	"strings"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

const groupColumns = `id, vk_id, screen_name, name, description, members_count,
	photo_url, is_closed, deactivated, monitored, created_at, updated_at`

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.VkID, &g.ScreenName, &g.Name, &g.Description,
		&g.MembersCount, &g.PhotoURL, &g.IsClosed, &g.Deactivated, &g.Monitored,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupFilter narrows ListGroups.
type GroupFilter struct {
	Search    string // matches name or screen_name, case-insensitive
	Monitored *bool
	Limit     int
	Offset    int
}

func (r *Repository) ListGroups(ctx context.Context, f GroupFilter) ([]models.Group, error) {
	var conds []string
	var args []interface{}

	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		conds = append(conds, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(screen_name) LIKE $%d)", len(args), len(args)))
	}
	if f.Monitored != nil {
		args = append(args, *f.Monitored)
		conds = append(conds, fmt.Sprintf("monitored = $%d", len(args)))
	}

	query := "SELECT " + groupColumns + " FROM groups"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (r *Repository) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	row := r.db.QueryRow(ctx, "SELECT "+groupColumns+" FROM groups WHERE id = $1", id)
	g, err := scanGroup(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return g, err
}

// ExistingVkIDs returns which of the given vk ids are already stored.
// Used by the parse worker for duplicate checks before bulk insert.
func (r *Repository) ExistingVkIDs(ctx context.Context, vkIDs []int64) (map[int64]bool, error) {
	if len(vkIDs) == 0 {
		return map[int64]bool{}, nil
	}
	rows, err := r.db.Query(ctx, "SELECT vk_id FROM groups WHERE vk_id = ANY($1)", vkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[int64]bool, len(vkIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// BulkInsertGroups inserts groups, skipping rows whose vk_id already exists.
// Returns the number of rows actually inserted.
func (r *Repository) BulkInsertGroups(ctx context.Context, groups []models.Group) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, g := range groups {
		tag, err := tx.Exec(ctx, `
			INSERT INTO groups (vk_id, screen_name, name, description, members_count, photo_url, is_closed, deactivated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (vk_id) DO NOTHING`,
			g.VkID, g.ScreenName, g.Name, g.Description, g.MembersCount, g.PhotoURL, g.IsClosed, g.Deactivated)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpdateGroup refreshes mutable metadata fetched from VK.
func (r *Repository) UpdateGroup(ctx context.Context, g *models.Group) error {
	_, err := r.db.Exec(ctx, `
		UPDATE groups SET
			screen_name = $2, name = $3, description = $4, members_count = $5,
			photo_url = $6, is_closed = $7, deactivated = $8, updated_at = NOW()
		WHERE id = $1`,
		g.ID, g.ScreenName, g.Name, g.Description, g.MembersCount, g.PhotoURL, g.IsClosed, g.Deactivated)
	return err
}

func (r *Repository) SetGroupMonitored(ctx context.Context, id int64, monitored bool) error {
	tag, err := r.db.Exec(ctx, "UPDATE groups SET monitored = $2, updated_at = NOW() WHERE id = $1", id, monitored)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM groups WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) CountGroups(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM groups").Scan(&n)
	return n, err
}
