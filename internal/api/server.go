package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"vkwatch/internal/eventbus"
	"vkwatch/internal/queue"
	"vkwatch/internal/repository"

	"github.com/gorilla/mux"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

type Server struct {
	repo       *repository.Repository
	queue      *queue.Client
	bus        *eventbus.Bus
	hub        *Hub
	auth       *AuthMiddleware
	httpServer *http.Server

	statusCache struct {
		mu        sync.Mutex
		payload   []byte
		expiresAt time.Time
	}
}

func NewServer(repo *repository.Repository, q *queue.Client, bus *eventbus.Bus, port string, opts ...func(*Server)) *Server {
	r := mux.NewRouter()

	s := &Server{
		repo:  repo,
		queue: q,
		bus:   bus,
		hub:   newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	registerBaseRoutes(r, s)
	registerAPIRoutes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

// WithAuth protects the /api/v1 subtree with JWT / API-key auth.
func WithAuth(auth *AuthMiddleware) func(*Server) {
	return func(s *Server) { s.auth = auth }
}

func (s *Server) Start() error {
	go s.hub.run()
	if s.bus != nil {
		go s.forwardEvents()
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
