package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vkwatch/internal/models"
	"vkwatch/internal/vk"
)

// fakeStore is an in-memory Store for worker tests.
type fakeStore struct {
	mu sync.Mutex

	tasks      map[string]*models.Task
	taskErrors []models.TaskError

	groups        map[int64]*models.Group
	existingVkIDs map[int64]bool
	inserted      []models.Group
	insertErr     error

	posts    []models.Post
	comments []models.Comment

	due      []models.MonitoringSetting
	settings []models.MonitoringSetting
	touched  []int64
	keywords []models.Keyword
	recent   map[int64][]models.Comment

	notifications map[string]int64
	nextNotifID   int64
	delivered     []int64

	created []models.Task

	// afterProgress runs inside UpdateTaskProgress while the lock is
	// held; tests use it to flip task state between batches.
	afterProgress func(t *models.Task)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:         make(map[string]*models.Task),
		groups:        make(map[int64]*models.Group),
		existingVkIDs: make(map[int64]bool),
		recent:        make(map[int64][]models.Comment),
		notifications: make(map[string]int64),
	}
}

func (s *fakeStore) addTask(id, status string) {
	s.tasks[id] = &models.Task{ID: id, Status: status}
}

func (s *fakeStore) MarkTaskRunning(ctx context.Context, id string, total int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.StatusPending {
		return false, nil
	}
	t.Status = models.StatusRunning
	t.Total = total
	return true, nil
}

func (s *fakeStore) UpdateTaskProgress(ctx context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Processed = processed
		if s.afterProgress != nil {
			s.afterProgress(t)
		}
	}
	return nil
}

func (s *fakeStore) FinishTask(ctx context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = status
		t.Error = errMsg
	}
	return nil
}

func (s *fakeStore) AppendTaskError(ctx context.Context, taskID, item, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskErrors = append(s.taskErrors, models.TaskError{TaskID: taskID, Item: item, Message: message})
	if t, ok := s.tasks[taskID]; ok {
		t.ErrorCount++
	}
	return nil
}

func (s *fakeStore) IsTaskCancelled(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return ok && t.Status == models.StatusCancelled, nil
}

func (s *fakeStore) ExistingVkIDs(ctx context.Context, vkIDs []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range vkIDs {
		if s.existingVkIDs[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (s *fakeStore) BulkInsertGroups(ctx context.Context, groups []models.Group) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, groups...)
	return len(groups), nil
}

func (s *fakeStore) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id], nil
}

func (s *fakeStore) UpdateGroup(ctx context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.groups[g.ID]; ok {
		*existing = *g
	}
	return nil
}

func (s *fakeStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, posts...)
	return nil
}

func (s *fakeStore) UpsertComments(ctx context.Context, comments []models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, comments...)
	return nil
}

func (s *fakeStore) ListDueMonitoring(ctx context.Context) ([]models.MonitoringSetting, error) {
	return s.due, nil
}

func (s *fakeStore) ListMonitoringSettings(ctx context.Context) ([]models.MonitoringSetting, error) {
	return s.settings, nil
}

func (s *fakeStore) TouchMonitoringRun(ctx context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, groupID)
	return nil
}

func (s *fakeStore) ListKeywords(ctx context.Context, activeOnly bool) ([]models.Keyword, error) {
	return s.keywords, nil
}

func (s *fakeStore) CommentsCollectedSince(ctx context.Context, groupID int64, since time.Time) ([]models.Comment, error) {
	return s.recent[groupID], nil
}

func (s *fakeStore) InsertNotification(ctx context.Context, groupID, keywordID, commentID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d:%d", keywordID, commentID)
	if _, ok := s.notifications[key]; ok {
		return 0, nil
	}
	s.nextNotifID++
	s.notifications[key] = s.nextNotifID
	return s.nextNotifID, nil
}

func (s *fakeStore) MarkNotificationDelivered(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, id)
	return nil
}

func (s *fakeStore) CreateTask(ctx context.Context, id, taskType string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.Task{ID: id, Type: taskType, Status: models.StatusPending, Payload: payload}
	s.tasks[id] = &t
	s.created = append(s.created, t)
	return nil
}

// fakeVK is a scripted vk.API for worker tests.
type fakeVK struct {
	resolve  map[string]*vk.ResolvedObject
	groups   []vk.GroupInfo
	groupErr error

	walls       map[int64][]vk.Post    // by owner id
	commentsFor map[int64][]vk.Comment // by post id
	wallErr     error
}

func (f *fakeVK) ResolveScreenName(ctx context.Context, name string) (*vk.ResolvedObject, error) {
	return f.resolve[name], nil
}

func (f *fakeVK) GroupsByIDs(ctx context.Context, ids []string) ([]vk.GroupInfo, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.groups, nil
}

func (f *fakeVK) WallGet(ctx context.Context, ownerID int64, offset, count int) (*vk.WallPage, error) {
	if f.wallErr != nil {
		return nil, f.wallErr
	}
	all := f.walls[ownerID]
	end := offset + count
	if end > len(all) {
		end = len(all)
	}
	if offset > len(all) {
		offset = len(all)
	}
	return &vk.WallPage{Count: len(all), Items: all[offset:end]}, nil
}

func (f *fakeVK) WallGetComments(ctx context.Context, ownerID, postID int64, offset, count int) (*vk.CommentsPage, error) {
	all := f.commentsFor[postID]
	end := offset + count
	if end > len(all) {
		end = len(all)
	}
	if offset > len(all) {
		offset = len(all)
	}
	return &vk.CommentsPage{Count: len(all), Items: all[offset:end]}, nil
}
