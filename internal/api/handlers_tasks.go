package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// handleParseGroups enqueues a groups:parse task for a list of raw group
// identifiers (numeric ids, screen names, or vk.com URLs).
func (s *Server) handleParseGroups(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifiers []string `json:"identifiers"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	identifiers := make([]string, 0, len(body.Identifiers))
	for _, id := range body.Identifiers {
		if id = strings.TrimSpace(id); id != "" {
			identifiers = append(identifiers, id)
		}
	}
	if len(identifiers) == 0 {
		writeAPIError(w, http.StatusBadRequest, "identifiers must not be empty")
		return
	}

	payload := queue.GroupsParsePayload{
		TaskID:      uuid.NewString(),
		Identifiers: identifiers,
	}
	raw, _ := json.Marshal(payload)
	if err := s.repo.CreateTask(r.Context(), payload.TaskID, models.TaskTypeGroupsParse, raw); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.queue.EnqueueGroupsParse(payload); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeAPIResponse(w, map[string]interface{}{
		"task_id": payload.TaskID,
		"total":   len(identifiers),
	}, nil, nil)
}

// handleCollect enqueues a vk:collect task for a set of known groups.
func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupIDs     []int64 `json:"group_ids"`
		MaxPosts     int     `json:"max_posts"`
		WithComments bool    `json:"with_comments"`
		SinceUnix    int64   `json:"since_unix"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(body.GroupIDs) == 0 {
		writeAPIError(w, http.StatusBadRequest, "group_ids must not be empty")
		return
	}

	payload := queue.VkCollectPayload{
		TaskID:       uuid.NewString(),
		GroupIDs:     body.GroupIDs,
		MaxPosts:     body.MaxPosts,
		WithComments: body.WithComments,
		SinceUnix:    body.SinceUnix,
	}
	raw, _ := json.Marshal(payload)
	if err := s.repo.CreateTask(r.Context(), payload.TaskID, models.TaskTypeVkCollect, raw); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.queue.EnqueueVkCollect(payload); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeAPIResponse(w, map[string]interface{}{
		"task_id": payload.TaskID,
		"total":   len(body.GroupIDs),
	}, nil, nil)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	f := repository.TaskFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		Limit:  limit,
		Offset: offset,
	}
	tasks, err := s.repo.ListTasks(r.Context(), f)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, taskViews(tasks), map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}, nil)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.repo.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeAPIError(w, http.StatusNotFound, "task not found")
		return
	}
	writeAPIResponse(w, taskView(*task), nil, nil)
}

func (s *Server) handleTaskErrors(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	errs, err := s.repo.ListTaskErrors(r.Context(), mux.Vars(r)["id"], limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, errs, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}, nil)
}

// handleCancelTask flags a task cancelled. Running workers observe the flag
// at the next batch boundary; already-finished tasks cannot be cancelled.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := s.repo.CancelTask(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeAPIError(w, http.StatusConflict, "task is not pending or running")
		return
	}
	writeAPIResponse(w, map[string]interface{}{
		"task_id": id,
		"status":  models.StatusCancelled,
	}, nil, nil)
}

// taskView augments a task with its completion percentage.
type taskViewModel struct {
	models.Task
	Percent float64 `json:"percent"`
}

func taskView(t models.Task) taskViewModel {
	return taskViewModel{Task: t, Percent: t.Percent()}
}

func taskViews(tasks []models.Task) []taskViewModel {
	out := make([]taskViewModel, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t))
	}
	return out
}
