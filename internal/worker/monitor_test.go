package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vkwatch/internal/models"
	"vkwatch/internal/notify"
	"vkwatch/internal/queue"
)

type fakeEnqueuer struct {
	payloads []queue.VkCollectPayload
}

func (f *fakeEnqueuer) EnqueueVkCollect(p queue.VkCollectPayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return p.TaskID, nil
}

func TestMonitorEnqueuesDueGroups(t *testing.T) {
	lastRun := time.Now().Add(-2 * time.Hour)
	store := newFakeStore()
	store.due = []models.MonitoringSetting{
		{GroupID: 1, Enabled: true, IntervalMinutes: 60, PostsDepth: 25, WithComments: true, LastRunAt: &lastRun},
		{GroupID: 2, Enabled: true, IntervalMinutes: 30, PostsDepth: 10},
	}

	q := &fakeEnqueuer{}
	m := NewMonitorScheduler(store, q, nil, nil, time.Minute)
	m.enqueueDue(context.Background())

	if len(q.payloads) != 2 {
		t.Fatalf("enqueued %d tasks, want 2", len(q.payloads))
	}
	p := q.payloads[0]
	if !p.Monitoring || p.MaxPosts != 25 || !p.WithComments {
		t.Errorf("unexpected payload: %+v", p)
	}
	if p.SinceUnix != lastRun.Unix() {
		t.Errorf("since = %d, want last run %d", p.SinceUnix, lastRun.Unix())
	}
	if q.payloads[1].SinceUnix != 0 {
		t.Errorf("first run should have no watermark, got %d", q.payloads[1].SinceUnix)
	}
	if len(store.created) != 2 {
		t.Fatalf("recorded %d task rows, want 2", len(store.created))
	}
	if store.created[0].ID != q.payloads[0].TaskID {
		t.Error("task row id does not match enqueued task id")
	}
	if len(store.touched) != 2 {
		t.Errorf("touched %d groups, want 2", len(store.touched))
	}
}

func TestMonitorKeywordMatchDeliversWebhook(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Watch-Signature") == "" {
			t.Error("missing webhook signature")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newFakeStore()
	store.groups[1] = &models.Group{ID: 1, Name: "Alpha"}
	store.settings = []models.MonitoringSetting{
		{GroupID: 1, Enabled: true, WebhookURL: srv.URL},
	}
	store.keywords = []models.Keyword{{ID: 5, Word: "Акция", IsActive: true}}
	store.recent[1] = []models.Comment{
		{ID: 11, Text: "Сегодня большая АКЦИЯ в магазине", OwnerID: -10, PostVkID: 100, VkID: 1},
		{ID: 12, Text: "ничего интересного", OwnerID: -10, PostVkID: 100, VkID: 2},
	}

	m := NewMonitorScheduler(store, &fakeEnqueuer{}, notify.NewNotifier("secret"), nil, time.Minute)
	m.matchKeywords(context.Background())

	if got := hits.Load(); got != 1 {
		t.Fatalf("webhook hit %d times, want 1", got)
	}
	if len(store.notifications) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(store.notifications))
	}
	if len(store.delivered) != 1 {
		t.Errorf("marked %d delivered, want 1", len(store.delivered))
	}

	// Re-running the scan must not notify again for the same comment.
	m.matchKeywords(context.Background())
	if got := hits.Load(); got != 1 {
		t.Errorf("duplicate scan re-delivered webhook (%d hits)", got)
	}
}

func TestMonitorSkipsDisabledSettings(t *testing.T) {
	store := newFakeStore()
	store.settings = []models.MonitoringSetting{{GroupID: 1, Enabled: false}}
	store.keywords = []models.Keyword{{ID: 5, Word: "sale", IsActive: true}}
	store.recent[1] = []models.Comment{{ID: 11, Text: "big sale"}}

	m := NewMonitorScheduler(store, &fakeEnqueuer{}, nil, nil, time.Minute)
	m.matchKeywords(context.Background())

	if len(store.notifications) != 0 {
		t.Errorf("disabled group produced %d notifications", len(store.notifications))
	}
}

func TestCommentLink(t *testing.T) {
	c := models.Comment{OwnerID: -123, PostVkID: 456, VkID: 789}
	want := "https://vk.com/wall-123_456?reply=789"
	if got := commentLink(c); got != want {
		t.Errorf("commentLink = %s, want %s", got, want)
	}
}
