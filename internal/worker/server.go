package worker

import (
	"log"

	"vkwatch/internal/eventbus"
	"vkwatch/internal/queue"
	"vkwatch/internal/vk"

	"github.com/hibiken/asynq"
)

// ServerOptions tunes the task processing server.
type ServerOptions struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queue         string
	PriorityQueue string
}

// Server wraps an asynq server with both task handlers registered. It
// processes groups:parse and vk:collect tasks until Shutdown.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewServer(store Store, api vk.API, bus *eventbus.Bus, opts ServerOptions) *Server {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.PriorityQueue == "" {
		opts.PriorityQueue = opts.Queue
	}

	// Interactive tasks drain ~4x faster than scheduled monitoring runs.
	queues := map[string]int{opts.Queue: 1}
	queues[opts.PriorityQueue] = 4

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		},
		asynq.Config{
			Concurrency: opts.Concurrency,
			Queues:      queues,
			Logger:      asynqLogger{},
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeGroupsParse, NewGroupsParseWorker(store, api, bus))
	mux.Handle(queue.TypeVkCollect, NewVkCollectWorker(store, api, bus))

	return &Server{srv: srv, mux: mux}
}

// Start begins processing tasks. It returns once the server has started;
// processing continues in background goroutines.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown waits for in-flight tasks to finish.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// asynqLogger funnels asynq's internal logging through the standard logger
// with the component prefix the rest of the process uses.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) {}
func (asynqLogger) Info(args ...interface{})  { log.Println(append([]interface{}{"[queue]"}, args...)...) }
func (asynqLogger) Warn(args ...interface{})  { log.Println(append([]interface{}{"[queue]"}, args...)...) }
func (asynqLogger) Error(args ...interface{}) { log.Println(append([]interface{}{"[queue]"}, args...)...) }
func (asynqLogger) Fatal(args ...interface{}) {
	log.Fatalln(append([]interface{}{"[queue]"}, args...)...)
}
