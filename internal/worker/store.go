package worker

import (
	"context"
	"encoding/json"
	"time"

	"vkwatch/internal/models"
)

// Store is the repository surface the workers depend on. Tests substitute
// an in-memory fake; production wires *repository.Repository.
type Store interface {
	MarkTaskRunning(ctx context.Context, id string, total int) (bool, error)
	UpdateTaskProgress(ctx context.Context, id string, processed int) error
	FinishTask(ctx context.Context, id, status, errMsg string) error
	AppendTaskError(ctx context.Context, taskID, item, message string) error
	IsTaskCancelled(ctx context.Context, id string) (bool, error)

	ExistingVkIDs(ctx context.Context, vkIDs []int64) (map[int64]bool, error)
	BulkInsertGroups(ctx context.Context, groups []models.Group) (int, error)
	GetGroupByID(ctx context.Context, id int64) (*models.Group, error)
	UpdateGroup(ctx context.Context, g *models.Group) error

	UpsertPosts(ctx context.Context, posts []models.Post) error
	UpsertComments(ctx context.Context, comments []models.Comment) error

	ListDueMonitoring(ctx context.Context) ([]models.MonitoringSetting, error)
	ListMonitoringSettings(ctx context.Context) ([]models.MonitoringSetting, error)
	TouchMonitoringRun(ctx context.Context, groupID int64) error
	ListKeywords(ctx context.Context, activeOnly bool) ([]models.Keyword, error)
	CommentsCollectedSince(ctx context.Context, groupID int64, since time.Time) ([]models.Comment, error)
	InsertNotification(ctx context.Context, groupID, keywordID, commentID int64) (int64, error)
	MarkNotificationDelivered(ctx context.Context, id int64) error
	CreateTask(ctx context.Context, id, taskType string, payload json.RawMessage) error
}

// finalStatus applies the partial-failure rules shared by both workers:
// every item failed means the task failed, some failures mean
// completed_with_errors, otherwise completed.
func finalStatus(total, failed int) string {
	switch {
	case total > 0 && failed >= total:
		return models.StatusFailed
	case failed > 0:
		return models.StatusCompletedWithErrors
	default:
		return models.StatusCompleted
	}
}
