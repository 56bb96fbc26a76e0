package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"vkwatch/internal/eventbus"
	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/vk"

	"github.com/hibiken/asynq"
)

const defaultMaxPosts = 100

// VkCollectWorker fetches wall posts (and optionally their comments) for
// each group in the task payload and upserts them. One group failing does
// not abort the task; progress advances per group.
type VkCollectWorker struct {
	store Store
	api   vk.API
	bus   *eventbus.Bus
}

func NewVkCollectWorker(store Store, api vk.API, bus *eventbus.Bus) *VkCollectWorker {
	return &VkCollectWorker{store: store, api: api, bus: bus}
}

func (w *VkCollectWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.VkCollectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("vk:collect: bad payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID := payload.TaskID
	total := len(payload.GroupIDs)

	ok, err := w.store.MarkTaskRunning(ctx, taskID, total)
	if err != nil {
		return fmt.Errorf("vk:collect %s: mark running: %w", taskID, err)
	}
	if !ok {
		log.Printf("[vk_collect] Task %s was cancelled before start", taskID)
		return nil
	}

	maxPosts := payload.MaxPosts
	if maxPosts <= 0 {
		maxPosts = defaultMaxPosts
	}
	var since time.Time
	if payload.SinceUnix > 0 {
		since = time.Unix(payload.SinceUnix, 0)
	}

	log.Printf("[vk_collect] Task %s: %d groups (max_posts=%d comments=%v)",
		taskID, total, maxPosts, payload.WithComments)

	processed := 0
	failed := 0

	for _, groupID := range payload.GroupIDs {
		if cancelled, err := w.store.IsTaskCancelled(ctx, taskID); err == nil && cancelled {
			log.Printf("[vk_collect] Task %s cancelled after %d/%d groups", taskID, processed, total)
			return nil
		}

		if err := w.collectGroup(ctx, groupID, maxPosts, payload.WithComments, since); err != nil {
			w.appendError(ctx, taskID, fmt.Sprintf("group:%d", groupID), err.Error())
			failed++
		}

		processed++
		if err := w.store.UpdateTaskProgress(ctx, taskID, processed); err != nil {
			log.Printf("[vk_collect] Task %s: progress update failed: %v", taskID, err)
		}
		w.publishProgress(taskID, processed, total, failed)
	}

	status := finalStatus(total, failed)
	if err := w.store.FinishTask(ctx, taskID, status, ""); err != nil {
		return fmt.Errorf("vk:collect %s: finish: %w", taskID, err)
	}

	w.publishDone(taskID, status, processed, total, failed)
	log.Printf("[vk_collect] Task %s done: %d/%d groups, %d failed (%s)",
		taskID, processed, total, failed, status)
	return nil
}

// collectGroup paginates the group wall, saves posts, then comments for
// posts that have any.
func (w *VkCollectWorker) collectGroup(ctx context.Context, groupID int64, maxPosts int, withComments bool, since time.Time) error {
	group, err := w.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}
	if group == nil {
		return fmt.Errorf("group %d not found", groupID)
	}
	if group.Deactivated != "" {
		return fmt.Errorf("community is %s", group.Deactivated)
	}
	w.refreshGroupMeta(ctx, group)

	ownerID := -group.VkID

	var posts []models.Post
	for offset := 0; offset < maxPosts; offset += vk.WallPageSize {
		count := vk.WallPageSize
		if remaining := maxPosts - offset; remaining < count {
			count = remaining
		}

		page, err := w.api.WallGet(ctx, ownerID, offset, count)
		if err != nil {
			return fmt.Errorf("wall.get offset %d: %w", offset, err)
		}

		reachedWatermark := false
		for i, p := range page.Items {
			postedAt := time.Unix(p.Date, 0)
			if !since.IsZero() && postedAt.Before(since) {
				// Walls are newest-first, except a pinned post which sits
				// first regardless of date. Tolerate one leading old item
				// before treating the rest of the wall as already seen.
				if offset == 0 && i == 0 {
					continue
				}
				reachedWatermark = true
				continue
			}
			posts = append(posts, models.Post{
				VkID:          p.ID,
				OwnerID:       p.OwnerID,
				GroupID:       group.ID,
				FromID:        p.FromID,
				Text:          p.Text,
				PostedAt:      postedAt,
				CommentsCount: p.Comments.Count,
				LikesCount:    p.Likes.Count,
				RepostsCount:  p.Reposts.Count,
				ViewsCount:    p.Views.Count,
			})
		}

		if reachedWatermark || offset+len(page.Items) >= page.Count || len(page.Items) < count {
			break
		}
	}

	if err := w.store.UpsertPosts(ctx, posts); err != nil {
		return fmt.Errorf("save %d posts: %w", len(posts), err)
	}

	if !withComments {
		return nil
	}

	var comments []models.Comment
	for _, p := range posts {
		if p.CommentsCount == 0 {
			continue
		}
		postComments, err := w.collectComments(ctx, group.ID, ownerID, p.VkID)
		if err != nil {
			// A single post's comments failing should not lose the rest of
			// the group; surface it as part of the group error only if
			// nothing else was collected.
			log.Printf("[vk_collect] group %d post %d: comments failed: %v", groupID, p.VkID, err)
			continue
		}
		comments = append(comments, postComments...)
	}

	if err := w.store.UpsertComments(ctx, comments); err != nil {
		return fmt.Errorf("save %d comments: %w", len(comments), err)
	}
	return nil
}

// refreshGroupMeta pulls current community info so member counts and the
// closed/deactivated flags stay fresh across collections. Best effort: a
// failed refresh never fails the group.
func (w *VkCollectWorker) refreshGroupMeta(ctx context.Context, group *models.Group) {
	infos, err := w.api.GroupsByIDs(ctx, []string{strconv.FormatInt(group.VkID, 10)})
	if err != nil {
		log.Printf("[vk_collect] group %d: metadata refresh failed: %v", group.VkID, err)
		return
	}
	for _, info := range infos {
		if info.ID != group.VkID {
			continue
		}
		group.Name = info.Name
		group.ScreenName = info.ScreenName
		group.Description = info.Description
		group.MembersCount = info.MembersCount
		group.PhotoURL = info.Photo200
		group.IsClosed = info.IsClosed != 0
		group.Deactivated = info.Deactivated
		if err := w.store.UpdateGroup(ctx, group); err != nil {
			log.Printf("[vk_collect] group %d: metadata save failed: %v", group.VkID, err)
		}
		return
	}
}

func (w *VkCollectWorker) collectComments(ctx context.Context, groupID, ownerID, postVkID int64) ([]models.Comment, error) {
	var out []models.Comment
	for offset := 0; ; offset += vk.WallPageSize {
		page, err := w.api.WallGetComments(ctx, ownerID, postVkID, offset, vk.WallPageSize)
		if err != nil {
			return nil, err
		}
		for _, c := range page.Items {
			out = append(out, models.Comment{
				VkID:       c.ID,
				PostVkID:   postVkID,
				OwnerID:    ownerID,
				GroupID:    groupID,
				FromID:     c.FromID,
				Text:       c.Text,
				PostedAt:   time.Unix(c.Date, 0),
				LikesCount: c.Likes.Count,
			})
		}
		if offset+len(page.Items) >= page.Count || len(page.Items) == 0 {
			break
		}
	}
	return out, nil
}

func (w *VkCollectWorker) appendError(ctx context.Context, taskID, item, message string) {
	if err := w.store.AppendTaskError(ctx, taskID, item, message); err != nil {
		log.Printf("[vk_collect] Task %s: failed to record error for %q: %v", taskID, item, err)
	}
}

func (w *VkCollectWorker) publishProgress(taskID string, processed, total, failed int) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeTaskProgress,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      ProgressData{Processed: processed, Total: total, Failed: failed},
	})
}

func (w *VkCollectWorker) publishDone(taskID, status string, processed, total, failed int) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeTaskDone,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Data:      DoneData{Status: status, Processed: processed, Total: total, Failed: failed},
	})
}
