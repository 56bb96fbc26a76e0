package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vkwatch/internal/models"

	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, type, status, payload, total, processed, error_count,
	error, created_at, started_at, finished_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Payload, &t.Total, &t.Processed,
		&t.ErrorCount, &t.Error, &t.CreatedAt, &t.StartedAt, &t.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) CreateTask(ctx context.Context, id, taskType string, payload json.RawMessage) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO tasks (id, type, status, payload) VALUES ($1, $2, $3, $4)",
		id, taskType, models.StatusPending, payload)
	return err
}

func (r *Repository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

func (r *Repository) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	var conds []string
	var args []interface{}

	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}

	query := "SELECT " + taskColumns + " FROM tasks"
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

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// MarkTaskRunning transitions a pending task to running and records the
// total item count. Returns false if the task was cancelled in the meantime.
func (r *Repository) MarkTaskRunning(ctx context.Context, id string, total int) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET status = $2, total = $3, started_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)`,
		id, models.StatusRunning, total, models.StatusCancelled, models.StatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateTaskProgress advances the processed counter, clamped to total.
func (r *Repository) UpdateTaskProgress(ctx context.Context, id string, processed int) error {
	_, err := r.db.Exec(ctx,
		"UPDATE tasks SET processed = LEAST($2, total) WHERE id = $1", id, processed)
	return err
}

// FinishTask records the terminal status. For failed tasks errMsg carries
// the fatal error.
func (r *Repository) FinishTask(ctx context.Context, id, status, errMsg string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE tasks SET status = $2, error = $3, finished_at = NOW() WHERE id = $1",
		id, status, errMsg)
	return err
}

// CancelTask marks a pending or running task cancelled. Workers observe the
// flag at batch boundaries via IsTaskCancelled.
func (r *Repository) CancelTask(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE tasks SET status = $2, finished_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`,
		id, models.StatusCancelled, models.StatusPending, models.StatusRunning)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) IsTaskCancelled(ctx context.Context, id string) (bool, error) {
	var status string
	err := r.db.QueryRow(ctx, "SELECT status FROM tasks WHERE id = $1", id).Scan(&status)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == models.StatusCancelled, nil
}

// AppendTaskError accumulates an item-level failure and bumps the counter.
func (r *Repository) AppendTaskError(ctx context.Context, taskID, item, message string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"INSERT INTO task_errors (task_id, item, message) VALUES ($1, $2, $3)",
		taskID, item, message); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE tasks SET error_count = error_count + 1 WHERE id = $1", taskID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListTaskErrors(ctx context.Context, taskID string, limit, offset int) ([]models.TaskError, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, task_id, item, message, created_at FROM task_errors
		WHERE task_id = $1 ORDER BY id LIMIT $2 OFFSET $3`, taskID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []models.TaskError
	for rows.Next() {
		var e models.TaskError
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Item, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// ListStuckTasks returns running tasks whose worker has not reported
// progress within the threshold. Used by the requeue tool.
func (r *Repository) ListStuckTasks(ctx context.Context, olderThan time.Duration) ([]models.Task, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = $1 AND started_at < NOW() - $2::interval",
		models.StatusRunning, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (r *Repository) CountTasksByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
