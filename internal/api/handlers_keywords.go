package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
)

func (s *Server) handleListKeywords(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	keywords, err := s.repo.ListKeywords(r.Context(), activeOnly)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, keywords, map[string]interface{}{"count": len(keywords)}, nil)
}

func (s *Server) handleCreateKeyword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Word string `json:"word"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	word := strings.TrimSpace(body.Word)
	if word == "" {
		writeAPIError(w, http.StatusBadRequest, "word must not be empty")
		return
	}

	kw, err := s.repo.CreateKeyword(r.Context(), word)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeAPIResponse(w, kw, nil, nil)
}

func (s *Server) handleUpdateKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body struct {
		Word     string `json:"word"`
		IsActive bool   `json:"is_active"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	word := strings.TrimSpace(body.Word)
	if word == "" {
		writeAPIError(w, http.StatusBadRequest, "word must not be empty")
		return
	}

	if err := s.repo.UpdateKeyword(r.Context(), id, word, body.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeAPIError(w, http.StatusNotFound, "keyword not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, map[string]interface{}{
		"id":        id,
		"word":      word,
		"is_active": body.IsActive,
	}, nil, nil)
}

func (s *Server) handleDeleteKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.DeleteKeyword(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeAPIError(w, http.StatusNotFound, "keyword not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIResponse(w, map[string]interface{}{"deleted": id}, nil, nil)
}
