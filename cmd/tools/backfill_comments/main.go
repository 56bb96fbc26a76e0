// backfill_comments enqueues vk:collect tasks with comments enabled for
// groups that have posts with comments but no collected comments yet.
// One-shot maintenance tool; safe to re-run, upserts are idempotent.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"vkwatch/internal/models"
	"vkwatch/internal/queue"
	"vkwatch/internal/repository"

	"github.com/google/uuid"
)

func main() {
	limit := flag.Int("limit", 50, "max groups to backfill per run")
	maxPosts := flag.Int("max-posts", 100, "posts per group to re-check")
	dryRun := flag.Bool("dry-run", false, "list groups without enqueueing")
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

	groupIDs, err := repo.GroupsMissingComments(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to find groups: %v", err)
	}
	if len(groupIDs) == 0 {
		fmt.Println("No groups with missing comments found.")
		return
	}
	fmt.Printf("Found %d group(s) with posts but no comments.\n", len(groupIDs))

	if *dryRun {
		for _, id := range groupIDs {
			fmt.Printf("  group %d\n", id)
		}
		return
	}

	q := queue.NewClient(queue.Options{
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		Queue:         "default",
		PriorityQueue: "priority",
	})
	defer q.Close()

	payload := queue.VkCollectPayload{
		TaskID:       uuid.NewString(),
		GroupIDs:     groupIDs,
		MaxPosts:     *maxPosts,
		WithComments: true,
	}
	raw, _ := json.Marshal(payload)
	if err := repo.CreateTask(ctx, payload.TaskID, models.TaskTypeVkCollect, raw); err != nil {
		log.Fatalf("Failed to record task: %v", err)
	}
	if _, err := q.EnqueueVkCollect(payload); err != nil {
		log.Fatalf("Failed to enqueue: %v", err)
	}

	fmt.Printf("Enqueued task %s for %d group(s).\n", payload.TaskID, len(groupIDs))
}
