package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"vkwatch/internal/eventbus"
	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/vk"

	"github.com/hibiken/asynq"
)

// GroupsParseWorker resolves raw group identifiers (ids, screen names,
// vk.com URLs) through the VK API, skips duplicates, and bulk-inserts the
// rest into the groups table. Item failures are accumulated on the task and
// never abort the run.
type GroupsParseWorker struct {
	store Store
	api   vk.API
	bus   *eventbus.Bus
}

func NewGroupsParseWorker(store Store, api vk.API, bus *eventbus.Bus) *GroupsParseWorker {
	return &GroupsParseWorker{store: store, api: api, bus: bus}
}

func (w *GroupsParseWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.GroupsParsePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("groups:parse: bad payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID := payload.TaskID
	identifiers := normalizeIdentifiers(payload.Identifiers)
	total := len(identifiers)

	ok, err := w.store.MarkTaskRunning(ctx, taskID, total)
	if err != nil {
		return fmt.Errorf("groups:parse %s: mark running: %w", taskID, err)
	}
	if !ok {
		log.Printf("[groups_parse] Task %s was cancelled before start", taskID)
		return nil
	}

	log.Printf("[groups_parse] Task %s: resolving %d identifiers", taskID, total)

	processed := 0
	failed := 0
	inserted := 0
	duplicates := 0

	for start := 0; start < total; start += vk.GroupsBatchSize {
		if cancelled, err := w.store.IsTaskCancelled(ctx, taskID); err == nil && cancelled {
			log.Printf("[groups_parse] Task %s cancelled at item %d", taskID, processed)
			return nil
		}

		end := start + vk.GroupsBatchSize
		if end > total {
			end = total
		}
		batch := identifiers[start:end]

		ins, dup, errs := w.processBatch(ctx, taskID, batch)
		inserted += ins
		duplicates += dup
		failed += errs

		processed = end
		if err := w.store.UpdateTaskProgress(ctx, taskID, processed); err != nil {
			log.Printf("[groups_parse] Task %s: progress update failed: %v", taskID, err)
		}
		w.publishProgress(taskID, processed, total, failed)
	}

	status := finalStatus(total, failed)
	if err := w.store.FinishTask(ctx, taskID, status, ""); err != nil {
		return fmt.Errorf("groups:parse %s: finish: %w", taskID, err)
	}

	w.publishDone(taskID, status, processed, total, failed)
	log.Printf("[groups_parse] Task %s done: %d inserted, %d duplicates, %d failed (%s)",
		taskID, inserted, duplicates, failed, status)
	return nil
}

// processBatch resolves one groups.getById batch. Returns inserted,
// duplicate and failed counts for the batch.
func (w *GroupsParseWorker) processBatch(ctx context.Context, taskID string, batch []string) (int, int, int) {
	infos, err := w.api.GroupsByIDs(ctx, batch)
	if err != nil {
		// The whole batch failed (network, auth, exhausted retries).
		// Record every item and keep going with the next batch.
		for _, ident := range batch {
			w.appendError(ctx, taskID, ident, err.Error())
		}
		return 0, 0, len(batch)
	}

	// VK silently drops identifiers it cannot resolve; report those as
	// item failures.
	resolved := make(map[string]bool, len(infos))
	for _, g := range infos {
		resolved[strings.ToLower(g.ScreenName)] = true
		resolved[strconv.FormatInt(g.ID, 10)] = true
	}
	failed := 0
	for _, ident := range batch {
		if !resolved[strings.ToLower(ident)] {
			w.appendError(ctx, taskID, ident, "not found or inaccessible")
			failed++
		}
	}

	// Deactivated communities resolve but cannot be collected.
	candidates := make([]models.Group, 0, len(infos))
	vkIDs := make([]int64, 0, len(infos))
	for _, g := range infos {
		if g.Deactivated != "" {
			w.appendError(ctx, taskID, g.ScreenName, "community is "+g.Deactivated)
			failed++
			continue
		}
		vkIDs = append(vkIDs, g.ID)
		candidates = append(candidates, models.Group{
			VkID:         g.ID,
			ScreenName:   g.ScreenName,
			Name:         g.Name,
			Description:  g.Description,
			MembersCount: g.MembersCount,
			PhotoURL:     g.Photo200,
			IsClosed:     g.IsClosed > 0,
		})
	}

	existing, err := w.store.ExistingVkIDs(ctx, vkIDs)
	if err != nil {
		for _, g := range candidates {
			w.appendError(ctx, taskID, g.ScreenName, "duplicate check failed: "+err.Error())
		}
		return 0, 0, failed + len(candidates)
	}

	fresh := candidates[:0]
	duplicates := 0
	for _, g := range candidates {
		if existing[g.VkID] {
			duplicates++
			continue
		}
		fresh = append(fresh, g)
	}

	inserted, err := w.store.BulkInsertGroups(ctx, fresh)
	if err != nil {
		for _, g := range fresh {
			w.appendError(ctx, taskID, g.ScreenName, "insert failed: "+err.Error())
		}
		return 0, duplicates, failed + len(fresh)
	}

	return inserted, duplicates, failed
}

func (w *GroupsParseWorker) appendError(ctx context.Context, taskID, item, message string) {
	if err := w.store.AppendTaskError(ctx, taskID, item, message); err != nil {
		log.Printf("[groups_parse] Task %s: failed to record error for %q: %v", taskID, item, err)
	}
}

func (w *GroupsParseWorker) publishProgress(taskID string, processed, total, failed int) {
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

func (w *GroupsParseWorker) publishDone(taskID, status string, processed, total, failed int) {
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

// ProgressData is the payload of task.progress events.
type ProgressData struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Failed    int `json:"failed"`
}

// DoneData is the payload of task.done events.
type DoneData struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
}

// normalizeIdentifiers strips vk.com URL forms down to bare identifiers and
// drops empties. "club123" / "public123" prefixes become numeric ids, the
// form groups.getById accepts directly.
func normalizeIdentifiers(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		id := strings.TrimSpace(r)
		id = strings.TrimPrefix(id, "https://")
		id = strings.TrimPrefix(id, "http://")
		id = strings.TrimPrefix(id, "m.vk.com/")
		id = strings.TrimPrefix(id, "vk.com/")
		id = strings.TrimSuffix(id, "/")
		if i := strings.IndexAny(id, "?#"); i >= 0 {
			id = id[:i]
		}
		for _, prefix := range []string{"club", "public", "event"} {
			if rest := strings.TrimPrefix(id, prefix); rest != id {
				if _, err := strconv.ParseInt(rest, 10, 64); err == nil {
					id = rest
				}
				break
			}
		}
		if id == "" || seen[strings.ToLower(id)] {
			continue
		}
		seen[strings.ToLower(id)] = true
		out = append(out, id)
	}
	return out
}
