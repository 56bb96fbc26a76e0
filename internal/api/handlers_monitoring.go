package api

import (
	"net/http"

	"vkwatch/internal/models"
)

func (s *Server) handleListMonitoring(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.ListMonitoringSettings(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, settings, map[string]interface{}{"count": len(settings)}, nil)
}

func (s *Server) handleGetMonitoring(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "group_id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	setting, err := s.repo.GetMonitoringSetting(r.Context(), groupID)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if setting == nil {
		writeAPIError(w, http.StatusNotFound, "no monitoring settings for group")
		return
	}
	writeAPIResponse(w, setting, nil, nil)
}

// handleUpsertMonitoring creates or replaces a group's monitoring settings
// and keeps the group's monitored flag in sync.
func (s *Server) handleUpsertMonitoring(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "group_id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Enabled         bool   `json:"enabled"`
		IntervalMinutes int    `json:"interval_minutes"`
		PostsDepth      int    `json:"posts_depth"`
		WithComments    bool   `json:"with_comments"`
		WebhookURL      string `json:"webhook_url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Enabled && body.IntervalMinutes < 1 {
		writeAPIError(w, http.StatusBadRequest, "interval_minutes must be at least 1")
		return
	}

	group, err := s.repo.GetGroupByID(r.Context(), groupID)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if group == nil {
		writeAPIError(w, http.StatusNotFound, "group not found")
		return
	}

	setting := &models.MonitoringSetting{
		GroupID:         groupID,
		Enabled:         body.Enabled,
		IntervalMinutes: body.IntervalMinutes,
		PostsDepth:      body.PostsDepth,
		WithComments:    body.WithComments,
		WebhookURL:      body.WebhookURL,
	}
	if setting.PostsDepth <= 0 {
		setting.PostsDepth = 50
	}

	if err := s.repo.UpsertMonitoringSetting(r.Context(), setting); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, setting, nil, nil)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	notifications, err := s.repo.ListNotifications(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, _ := s.repo.CountNotifications(r.Context())
	writeAPIResponse(w, notifications, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}, nil)
}
