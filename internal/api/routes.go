package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func registerBaseRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")
}

func registerAPIRoutes(r *mux.Router, s *Server) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	// Reads stay open for the dashboard; only mutating endpoints need
	// credentials.
	if s.auth != nil {
		v1.Use(s.auth.MutatingOnly)
	}

	v1.HandleFunc("/groups", s.handleListGroups).Methods("GET", "OPTIONS")
	v1.HandleFunc("/groups", s.handleCreateGroups).Methods("POST", "OPTIONS")
	v1.HandleFunc("/groups/{id}", s.handleGetGroup).Methods("GET", "OPTIONS")
	v1.HandleFunc("/groups/{id}", s.handleUpdateGroup).Methods("PUT", "OPTIONS")
	v1.HandleFunc("/groups/{id}", s.handleDeleteGroup).Methods("DELETE", "OPTIONS")
	v1.HandleFunc("/groups/{id}/posts", s.handleGroupPosts).Methods("GET", "OPTIONS")
	v1.HandleFunc("/groups/{id}/comments", s.handleGroupComments).Methods("GET", "OPTIONS")

	v1.HandleFunc("/keywords", s.handleListKeywords).Methods("GET", "OPTIONS")
	v1.HandleFunc("/keywords", s.handleCreateKeyword).Methods("POST", "OPTIONS")
	v1.HandleFunc("/keywords/{id}", s.handleUpdateKeyword).Methods("PUT", "OPTIONS")
	v1.HandleFunc("/keywords/{id}", s.handleDeleteKeyword).Methods("DELETE", "OPTIONS")

	v1.HandleFunc("/parser/groups", s.handleParseGroups).Methods("POST", "OPTIONS")
	v1.HandleFunc("/parser/collect", s.handleCollect).Methods("POST", "OPTIONS")

	v1.HandleFunc("/tasks", s.handleListTasks).Methods("GET", "OPTIONS")
	v1.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET", "OPTIONS")
	v1.HandleFunc("/tasks/{id}/errors", s.handleTaskErrors).Methods("GET", "OPTIONS")
	v1.HandleFunc("/tasks/{id}/cancel", s.handleCancelTask).Methods("POST", "OPTIONS")

	v1.HandleFunc("/monitoring", s.handleListMonitoring).Methods("GET", "OPTIONS")
	v1.HandleFunc("/monitoring/{group_id}", s.handleGetMonitoring).Methods("GET", "OPTIONS")
	v1.HandleFunc("/monitoring/{group_id}", s.handleUpsertMonitoring).Methods("PUT", "OPTIONS")

	v1.HandleFunc("/notifications", s.handleListNotifications).Methods("GET", "OPTIONS")

	v1.Handle("/stats/dashboard",
		cachedHandler(30*time.Second, s.handleDashboardStats)).Methods("GET", "OPTIONS")
	v1.HandleFunc("/comments/search", s.handleSearchComments).Methods("GET", "OPTIONS")

	v1.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "unknown endpoint")
	})
}
