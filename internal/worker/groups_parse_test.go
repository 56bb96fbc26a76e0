package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/vk"

	"github.com/hibiken/asynq"
)

func parseTask(t *testing.T, p queue.GroupsParsePayload) *asynq.Task {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(queue.TypeGroupsParse, b)
}

func TestGroupsParseInsertsResolvedGroups(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusPending)

	api := &fakeVK{
		groups: []vk.GroupInfo{
			{ID: 100, ScreenName: "alpha", Name: "Alpha", MembersCount: 5},
			{ID: 200, ScreenName: "beta", Name: "Beta"},
		},
	}

	w := NewGroupsParseWorker(store, api, nil)
	task := parseTask(t, queue.GroupsParsePayload{
		TaskID:      "t1",
		Identifiers: []string{"alpha", "https://vk.com/beta"},
	})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if got := store.tasks["t1"].Status; got != models.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("inserted %d groups, want 2", len(store.inserted))
	}
	if store.inserted[0].VkID != 100 || store.inserted[0].Name != "Alpha" {
		t.Errorf("unexpected group: %+v", store.inserted[0])
	}
	if store.tasks["t1"].Processed != 2 {
		t.Errorf("processed = %d, want 2", store.tasks["t1"].Processed)
	}
}

func TestGroupsParseSkipsDuplicatesAndDeactivated(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusPending)
	store.existingVkIDs[100] = true

	api := &fakeVK{
		groups: []vk.GroupInfo{
			{ID: 100, ScreenName: "known", Name: "Known"},
			{ID: 200, ScreenName: "banned_club", Name: "Banned", Deactivated: "banned"},
			{ID: 300, ScreenName: "fresh", Name: "Fresh"},
		},
	}

	w := NewGroupsParseWorker(store, api, nil)
	task := parseTask(t, queue.GroupsParsePayload{
		TaskID:      "t1",
		Identifiers: []string{"known", "banned_club", "fresh"},
	})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if len(store.inserted) != 1 || store.inserted[0].VkID != 300 {
		t.Fatalf("inserted = %+v, want only vk_id 300", store.inserted)
	}
	// banned community is an item failure, not a task failure
	if got := store.tasks["t1"].Status; got != models.StatusCompletedWithErrors {
		t.Errorf("status = %s, want completed_with_errors", got)
	}
	if len(store.taskErrors) != 1 || store.taskErrors[0].Item != "banned_club" {
		t.Errorf("taskErrors = %+v", store.taskErrors)
	}
}

func TestGroupsParseUnresolvedIdentifiers(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusPending)

	// VK silently drops unknown screen names from the response.
	api := &fakeVK{
		groups: []vk.GroupInfo{{ID: 100, ScreenName: "real", Name: "Real"}},
	}

	w := NewGroupsParseWorker(store, api, nil)
	task := parseTask(t, queue.GroupsParsePayload{
		TaskID:      "t1",
		Identifiers: []string{"real", "ghost_group"},
	})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if len(store.taskErrors) != 1 || store.taskErrors[0].Item != "ghost_group" {
		t.Fatalf("taskErrors = %+v, want one for ghost_group", store.taskErrors)
	}
	if got := store.tasks["t1"].Status; got != models.StatusCompletedWithErrors {
		t.Errorf("status = %s", got)
	}
}

func TestGroupsParseWholeBatchFailure(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusPending)

	api := &fakeVK{groupErr: fmt.Errorf("vk api error 5: auth failed")}

	w := NewGroupsParseWorker(store, api, nil)
	task := parseTask(t, queue.GroupsParsePayload{
		TaskID:      "t1",
		Identifiers: []string{"a", "b", "c"},
	})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	// Every item failed, so the whole task is failed.
	if got := store.tasks["t1"].Status; got != models.StatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
	if len(store.taskErrors) != 3 {
		t.Errorf("taskErrors = %d, want 3", len(store.taskErrors))
	}
}

func TestGroupsParseCancelledBeforeStart(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusCancelled)

	w := NewGroupsParseWorker(store, &fakeVK{}, nil)
	task := parseTask(t, queue.GroupsParsePayload{TaskID: "t1", Identifiers: []string{"a"}})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if got := store.tasks["t1"].Status; got != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled untouched", got)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d groups on a cancelled task", len(store.inserted))
	}
}

// Cancellation mid-run stops at the next batch boundary: the first batch
// lands, the second is never requested and the status stays cancelled.
func TestGroupsParseCancelledBetweenBatches(t *testing.T) {
	store := newFakeStore()
	store.addTask("t1", models.StatusPending)
	store.afterProgress = func(task *models.Task) {
		task.Status = models.StatusCancelled
	}

	// Two batches: 501 numeric identifiers, the first 500 resolve.
	identifiers := make([]string, 501)
	infos := make([]vk.GroupInfo, 500)
	for i := range identifiers {
		identifiers[i] = fmt.Sprintf("%d", i+1)
	}
	for i := range infos {
		infos[i] = vk.GroupInfo{ID: int64(i + 1), ScreenName: fmt.Sprintf("g%d", i+1)}
	}

	w := NewGroupsParseWorker(store, &fakeVK{groups: infos}, nil)
	task := parseTask(t, queue.GroupsParsePayload{TaskID: "t1", Identifiers: identifiers})

	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	if got := store.tasks["t1"].Status; got != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled (FinishTask must not run)", got)
	}
	if len(store.inserted) != 500 {
		t.Errorf("inserted %d groups, want only the first batch of 500", len(store.inserted))
	}
	if got := store.tasks["t1"].Processed; got != 500 {
		t.Errorf("processed = %d, want 500", got)
	}
	if len(store.taskErrors) != 0 {
		t.Errorf("taskErrors = %+v, want none (second batch never ran)", store.taskErrors)
	}
}

func TestGroupsParseBadPayloadSkipsRetry(t *testing.T) {
	w := NewGroupsParseWorker(newFakeStore(), &fakeVK{}, nil)
	task := asynq.NewTask(queue.TypeGroupsParse, []byte("{not json"))

	err := w.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("bad payload should not be retried: %v", err)
	}
}

func TestNormalizeIdentifiers(t *testing.T) {
	got := normalizeIdentifiers([]string{
		"https://vk.com/durov_club/",
		"vk.com/apiclub?w=wall-1_1",
		"club123",
		"public456",
		"  plain_name ",
		"plain_name", // duplicate
		"",
		"clubhouse", // "club" prefix but not numeric
	})
	want := []string{"durov_club", "apiclub", "123", "456", "plain_name", "clubhouse"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeIdentifiers = %v, want %v", got, want)
	}
}

func TestFinalStatus(t *testing.T) {
	cases := []struct {
		total, failed int
		want          string
	}{
		{10, 0, models.StatusCompleted},
		{10, 3, models.StatusCompletedWithErrors},
		{10, 10, models.StatusFailed},
		{0, 0, models.StatusCompleted},
	}
	for _, c := range cases {
		if got := finalStatus(c.total, c.failed); got != c.want {
			t.Errorf("finalStatus(%d, %d) = %s, want %s", c.total, c.failed, got, c.want)
		}
	}
}
