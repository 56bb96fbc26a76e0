// requeue_stuck finds tasks stuck in the running state (e.g. after a worker
// crash) and either fails them or re-enqueues them with their original
// payload.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/repository"

	"github.com/google/uuid"
)

func main() {
	olderThan := flag.Duration("older-than", 3*time.Hour, "how long a task must have been running to count as stuck")
	requeue := flag.Bool("requeue", false, "re-enqueue stuck tasks instead of just failing them")
	flag.Parse()

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		log.Fatal("DB_URL is required")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	repo, err := repository.NewRepository(dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	stuck, err := repo.ListStuckTasks(ctx, *olderThan)
	if err != nil {
		log.Fatalf("Failed to list stuck tasks: %v", err)
	}
	if len(stuck) == 0 {
		fmt.Println("No stuck tasks found.")
		return
	}
	fmt.Printf("Found %d stuck task(s) older than %s.\n", len(stuck), *olderThan)

	var q *queue.Client
	if *requeue {
		q = queue.NewClient(queue.Options{
			RedisAddr:     redisAddr,
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			Queue:         "default",
			PriorityQueue: "priority",
		})
		defer q.Close()
	}

	for _, task := range stuck {
		if err := repo.FinishTask(ctx, task.ID, models.StatusFailed, "marked stuck by requeue_stuck"); err != nil {
			log.Printf("Task %s: failed to mark: %v", task.ID, err)
			continue
		}
		fmt.Printf("Task %s (%s) marked failed.\n", task.ID, task.Type)

		if !*requeue {
			continue
		}
		newID, err := requeueTask(ctx, repo, q, task)
		if err != nil {
			log.Printf("Task %s: requeue failed: %v", task.ID, err)
			continue
		}
		fmt.Printf("  re-enqueued as %s\n", newID)
	}
}

// requeueTask clones the stuck task's payload under a fresh id and enqueues it.
func requeueTask(ctx context.Context, repo *repository.Repository, q *queue.Client, task models.Task) (string, error) {
	newID := uuid.NewString()

	switch task.Type {
	case models.TaskTypeGroupsParse:
		var p queue.GroupsParsePayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return "", fmt.Errorf("bad payload: %w", err)
		}
		p.TaskID = newID
		raw, _ := json.Marshal(p)
		if err := repo.CreateTask(ctx, newID, task.Type, raw); err != nil {
			return "", err
		}
		return q.EnqueueGroupsParse(p)
	case models.TaskTypeVkCollect:
		var p queue.VkCollectPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return "", fmt.Errorf("bad payload: %w", err)
		}
		p.TaskID = newID
		raw, _ := json.Marshal(p)
		if err := repo.CreateTask(ctx, newID, task.Type, raw); err != nil {
			return "", err
		}
		return q.EnqueueVkCollect(p)
	default:
		return "", fmt.Errorf("unknown task type %q", task.Type)
	}
}
