package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"vkwatch/internal/eventbus"
	"vkwatch/internal/models"
	"vkwatch/internal/notify"
	"vkwatch/internal/queue"

	"github.com/google/uuid"
)

// Enqueuer is the queue surface the scheduler needs.
type Enqueuer interface {
	EnqueueVkCollect(p queue.VkCollectPayload) (string, error)
}

// MonitorScheduler wakes up on an interval, enqueues collect tasks for
// groups whose monitoring interval has elapsed, and matches active keywords
// against comments collected since the previous scan.
type MonitorScheduler struct {
	store    Store
	queue    Enqueuer
	notifier *notify.Notifier
	bus      *eventbus.Bus
	interval time.Duration

	lastScan time.Time
}

func NewMonitorScheduler(store Store, q Enqueuer, notifier *notify.Notifier, bus *eventbus.Bus, interval time.Duration) *MonitorScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MonitorScheduler{
		store:    store,
		queue:    q,
		notifier: notifier,
		bus:      bus,
		interval: interval,
		lastScan: time.Now().Add(-interval),
	}
}

// Run blocks until the context is cancelled.
func (m *MonitorScheduler) Run(ctx context.Context) {
	log.Printf("[monitor] Scheduler started (tick %s)", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[monitor] Scheduler stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *MonitorScheduler) tick(ctx context.Context) {
	m.enqueueDue(ctx)
	m.matchKeywords(ctx)
}

// enqueueDue creates a vk:collect task for every group whose
// last_run_at + interval is in the past.
func (m *MonitorScheduler) enqueueDue(ctx context.Context) {
	due, err := m.store.ListDueMonitoring(ctx)
	if err != nil {
		log.Printf("[monitor] Failed to list due groups: %v", err)
		return
	}

	for _, setting := range due {
		if err := m.enqueueRun(ctx, setting); err != nil {
			log.Printf("[monitor] Group %d: %v", setting.GroupID, err)
		}
	}
}

func (m *MonitorScheduler) enqueueRun(ctx context.Context, setting models.MonitoringSetting) error {
	var since int64
	if setting.LastRunAt != nil {
		since = setting.LastRunAt.Unix()
	}

	payload := queue.VkCollectPayload{
		TaskID:       uuid.NewString(),
		GroupIDs:     []int64{setting.GroupID},
		MaxPosts:     setting.PostsDepth,
		WithComments: setting.WithComments,
		SinceUnix:    since,
		Monitoring:   true,
	}

	// Record the task row first so the worker never races an absent row.
	body, _ := json.Marshal(payload)
	if err := m.store.CreateTask(ctx, payload.TaskID, models.TaskTypeVkCollect, body); err != nil {
		return fmt.Errorf("record task %s: %w", payload.TaskID, err)
	}
	if _, err := m.queue.EnqueueVkCollect(payload); err != nil {
		return fmt.Errorf("enqueue collect: %w", err)
	}
	if err := m.store.TouchMonitoringRun(ctx, setting.GroupID); err != nil {
		return fmt.Errorf("touch last run: %w", err)
	}

	log.Printf("[monitor] Group %d: enqueued collect task %s", setting.GroupID, payload.TaskID)
	return nil
}

// matchKeywords scans comments collected since the previous tick for
// active keywords. The notifications table is unique on
// (keyword_id, comment_id) so overlapping scan windows are harmless.
func (m *MonitorScheduler) matchKeywords(ctx context.Context) {
	keywords, err := m.store.ListKeywords(ctx, true)
	if err != nil {
		log.Printf("[monitor] Failed to list keywords: %v", err)
		return
	}
	if len(keywords) == 0 {
		m.lastScan = time.Now()
		return
	}

	scanStart := time.Now()

	settings, err := m.store.ListMonitoringSettings(ctx)
	if err != nil {
		log.Printf("[monitor] Failed to load monitoring settings: %v", err)
		return
	}

	for _, setting := range settings {
		if !setting.Enabled {
			continue
		}
		comments, err := m.store.CommentsCollectedSince(ctx, setting.GroupID, m.lastScan)
		if err != nil {
			log.Printf("[monitor] Group %d: scan failed: %v", setting.GroupID, err)
			continue
		}
		for _, c := range comments {
			m.matchComment(ctx, setting, keywords, c)
		}
	}

	m.lastScan = scanStart
}

func (m *MonitorScheduler) matchComment(ctx context.Context, setting models.MonitoringSetting, keywords []models.Keyword, c models.Comment) {
	text := strings.ToLower(c.Text)
	for _, kw := range keywords {
		if !strings.Contains(text, strings.ToLower(kw.Word)) {
			continue
		}

		id, err := m.store.InsertNotification(ctx, setting.GroupID, kw.ID, c.ID)
		if err != nil {
			log.Printf("[monitor] Failed to record match (group %d, keyword %q): %v", setting.GroupID, kw.Word, err)
			continue
		}
		if id == 0 {
			continue // already notified for this keyword+comment
		}

		m.publishMatch(setting.GroupID, kw.Word, c)

		if setting.WebhookURL == "" || m.notifier == nil {
			continue
		}
		match := notify.KeywordMatch{
			GroupID:     setting.GroupID,
			GroupName:   m.groupName(ctx, setting.GroupID),
			Keyword:     kw.Word,
			CommentText: c.Text,
			CommentLink: commentLink(c),
			MatchedAt:   time.Now(),
		}
		if err := m.notifier.Send(ctx, setting.WebhookURL, match); err != nil {
			log.Printf("[monitor] Webhook for group %d failed: %v", setting.GroupID, err)
			continue
		}
		if err := m.store.MarkNotificationDelivered(ctx, id); err != nil {
			log.Printf("[monitor] Failed to mark notification %d delivered: %v", id, err)
		}
	}
}

func (m *MonitorScheduler) publishMatch(groupID int64, keyword string, c models.Comment) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type:      eventbus.TypeKeywordMatch,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"group_id": groupID,
			"keyword":  keyword,
			"comment":  c.Text,
		},
	})
}

func (m *MonitorScheduler) groupName(ctx context.Context, groupID int64) string {
	g, err := m.store.GetGroupByID(ctx, groupID)
	if err != nil || g == nil {
		return ""
	}
	return g.Name
}

// commentLink builds a vk.com permalink for a comment.
func commentLink(c models.Comment) string {
	return fmt.Sprintf("https://vk.com/wall%d_%d?reply=%d", c.OwnerID, c.PostVkID, c.VkID)
}
