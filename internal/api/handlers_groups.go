package api

import (
	"errors"
	"net/http"
	"strings"

	"vkwatch/internal/repository"

	"github.com/jackc/pgx/v5"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	f := repository.GroupFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  limit,
		Offset: offset,
	}
	switch r.URL.Query().Get("monitored") {
	case "true":
		v := true
		f.Monitored = &v
	case "false":
		v := false
		f.Monitored = &v
	}

	groups, err := s.repo.ListGroups(r.Context(), f)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, _ := s.repo.CountGroups(r.Context())

	writeAPIResponse(w, groups, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}, nil)
}

// handleCreateGroups accepts raw identifiers and enqueues a groups:parse
// task; groups appear once the worker resolves them against the VK API.
func (s *Server) handleCreateGroups(w http.ResponseWriter, r *http.Request) {
	s.handleParseGroups(w, r)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := s.repo.GetGroupByID(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if group == nil {
		writeAPIError(w, http.StatusNotFound, "group not found")
		return
	}
	writeAPIResponse(w, group, nil, nil)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Monitored *bool `json:"monitored"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Monitored == nil {
		writeAPIError(w, http.StatusBadRequest, "monitored field is required")
		return
	}

	group, err := s.repo.GetGroupByID(r.Context(), id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if group == nil {
		writeAPIError(w, http.StatusNotFound, "group not found")
		return
	}

	if err := s.repo.SetGroupMonitored(r.Context(), id, *body.Monitored); err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	group.Monitored = *body.Monitored
	writeAPIResponse(w, group, nil, nil)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.DeleteGroup(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeAPIError(w, http.StatusNotFound, "group not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, map[string]interface{}{"deleted": id}, nil, nil)
}

func (s *Server) handleGroupPosts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := parseLimitOffset(r)
	posts, err := s.repo.ListPostsByGroup(r.Context(), id, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, posts, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}, nil)
}

func (s *Server) handleGroupComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := parseLimitOffset(r)
	comments, err := s.repo.ListCommentsByGroup(r.Context(), id, limit, offset)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, comments, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	}, nil)
}
