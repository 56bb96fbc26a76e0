package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	dbStatus := "ok"
	if err := s.repo.Ping(r.Context()); err != nil {
		dbStatus = "down"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	redisStatus := "ok"
	if s.queue != nil {
		if err := s.queue.Ping(r.Context()); err != nil {
			redisStatus = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"db":     dbStatus,
		"redis":  redisStatus,
		"commit": BuildCommit,
	})
}

// handleStatus reports queue depth and task counts. The payload is cached
// briefly since dashboards poll it aggressively.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.statusCache.mu.Lock()
	if time.Now().Before(s.statusCache.expiresAt) && len(s.statusCache.payload) > 0 {
		payload := s.statusCache.payload
		s.statusCache.mu.Unlock()
		w.Header().Set("X-Cache", "HIT")
		w.Write(payload)
		return
	}
	s.statusCache.mu.Unlock()

	payload, err := s.buildStatusPayload(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.statusCache.mu.Lock()
	s.statusCache.payload = payload
	s.statusCache.expiresAt = time.Now().Add(5 * time.Second)
	s.statusCache.mu.Unlock()

	w.Write(payload)
}

func (s *Server) buildStatusPayload(ctx context.Context) ([]byte, error) {
	tasksByStatus, err := s.repo.CountTasksByStatus(ctx)
	if err != nil {
		return nil, err
	}

	queueDepth := 0
	if s.queue != nil {
		queueDepth = s.queue.Depth()
	}

	groups, _ := s.repo.CountGroups(ctx)
	posts, _ := s.repo.CountPosts(ctx)
	comments, _ := s.repo.CountComments(ctx)

	body := apiEnvelope{Data: map[string]interface{}{
		"commit":          BuildCommit,
		"queue_depth":     queueDepth,
		"tasks_by_status": tasksByStatus,
		"groups":          groups,
		"posts":           posts,
		"comments":        comments,
		"ws_clients":      s.hub.clientCount(),
		"generated_at":    time.Now().UTC().Format(time.RFC3339),
	}}
	return json.Marshal(body)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetDashboardStats(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, stats, nil, nil)
}

func (s *Server) handleSearchComments(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeAPIError(w, http.StatusBadRequest, "q parameter is required")
		return
	}
	limit, offset := parseLimitOffset(r)
	comments, err := s.repo.SearchComments(r.Context(), query, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, comments, map[string]interface{}{
		"q":      query,
		"limit":  limit,
		"offset": offset,
	}, nil)
}
