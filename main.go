package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"vkwatch/internal/api"
	"vkwatch/internal/config"
	"vkwatch/internal/eventbus"
	"vkwatch/internal/notify"
	"vkwatch/internal/queue"
	"vkwatch/internal/repository"
	"vkwatch/internal/vk"
	"vkwatch/internal/worker"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	log.Println("Initializing vkwatch backend...")
	log.Printf("DB: %s", redactDatabaseURL(cfg.DatabaseURL))
	log.Printf("Redis: %s", cfg.RedisAddr)
	log.Printf("API Port: %s", cfg.APIPort)
	log.Printf("Mode: %s", cfg.Mode)

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer repo.Close()

	// Auto-migration (skip with SKIP_MIGRATION=true for API-only containers).
	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("Database Migration SKIPPED (SKIP_MIGRATION=true)")
	} else {
		log.Println("Running Database Migration...")
		if err := repo.Migrate("schema.sql"); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database Migration Complete.")
	}

	vkClient, err := vk.NewClient(cfg.VKTokens, cfg.VKVersion, cfg.VKRateRPS)
	if err != nil {
		log.Fatalf("Failed to build VK client: %v", err)
	}

	queueClient := queue.NewClient(queue.Options{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Queue:         cfg.QueueName,
		PriorityQueue: cfg.PriorityQueue,
	})
	defer queueClient.Close()

	bus := eventbus.New()
	defer bus.Close()

	runAPI := cfg.Mode == "all" || cfg.Mode == "api"
	runWorkers := cfg.Mode == "all" || cfg.Mode == "worker"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	var apiServer *api.Server
	if runAPI {
		api.BuildCommit = BuildCommit

		var opts []func(*api.Server)
		if cfg.JWTSecret != "" {
			auth := api.NewAuthMiddleware(cfg.JWTSecret, repo.LookupAPIKey)
			opts = append(opts, api.WithAuth(auth))
		} else {
			log.Println("API auth is DISABLED (JWT_SECRET not set)")
		}

		apiServer = api.NewServer(repo, queueClient, bus, cfg.APIPort, opts...)
		go func() {
			log.Printf("Starting API Server on :%s", cfg.APIPort)
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("API Server failed: %v", err)
			}
		}()
	}

	var workerServer *worker.Server
	if runWorkers {
		workerServer = worker.NewServer(repo, vkClient, bus, worker.ServerOptions{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			Concurrency:   cfg.WorkerConcurrency,
			Queue:         cfg.QueueName,
			PriorityQueue: cfg.PriorityQueue,
		})
		if err := workerServer.Start(); err != nil {
			log.Fatalf("Worker server failed: %v", err)
		}
		log.Printf("Worker server started (concurrency=%d)", cfg.WorkerConcurrency)

		notifier := notify.NewNotifier(cfg.WebhookSecret)
		monitor := worker.NewMonitorScheduler(repo, queueClient, notifier, bus,
			time.Duration(cfg.MonitorIntervalSec)*time.Second)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Run(ctx)
		}()
	}

	<-sigChan
	log.Println("Shutting down...")
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		apiServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}
	cancel()
	wg.Wait()
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		// Avoid leaking secrets embedded in query params; keep only scheme/host/path for debugging.
		u.RawQuery = ""
		return u.String()
	}

	// Best-effort fallback for malformed/DSN-like URLs.
	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
