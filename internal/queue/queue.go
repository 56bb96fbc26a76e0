package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Task type names. These double as models.Task.Type values.
const (
	TypeGroupsParse = "groups:parse"
	TypeVkCollect   = "vk:collect"
)

// GroupsParsePayload is the groups:parse task body: a list of raw group
// identifiers (numeric ids, screen names, or vk.com URLs).
type GroupsParsePayload struct {
	TaskID      string   `json:"task_id"`
	Identifiers []string `json:"identifiers"`
}

// VkCollectPayload is the vk:collect task body.
type VkCollectPayload struct {
	TaskID       string  `json:"task_id"`
	GroupIDs     []int64 `json:"group_ids"` // internal group ids
	MaxPosts     int     `json:"max_posts"` // per group; 0 means default
	WithComments bool    `json:"with_comments"`
	SinceUnix    int64   `json:"since_unix,omitempty"` // skip posts older than this
	Monitoring   bool    `json:"monitoring,omitempty"` // enqueued by the scheduler
}

// Options configures the queue client.
type Options struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Queue         string
	PriorityQueue string
}

// Client enqueues tasks and inspects queue depth.
type Client struct {
	asynqCli  *asynq.Client
	inspector *asynq.Inspector
	rdb       *redis.Client
	queue     string
	priority  string
}

func NewClient(opts Options) *Client {
	redisOpt := asynq.RedisClientOpt{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	}
	queue := opts.Queue
	if queue == "" {
		queue = "default"
	}
	priority := opts.PriorityQueue
	if priority == "" {
		priority = queue
	}
	return &Client{
		asynqCli:  asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}),
		queue:    queue,
		priority: priority,
	}
}

func (c *Client) Close() error {
	c.inspector.Close()
	c.rdb.Close()
	return c.asynqCli.Close()
}

// Ping verifies the Redis connection backing the queue.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// EnqueueGroupsParse queues a groups:parse task and returns its id.
// Parse tasks are interactive (triggered from the UI) so they go to the
// priority queue. The caller records the task row before enqueueing so the
// worker never races an absent row.
func (c *Client) EnqueueGroupsParse(p GroupsParsePayload) (string, error) {
	if p.TaskID == "" {
		p.TaskID = uuid.NewString()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	_, err = c.asynqCli.Enqueue(asynq.NewTask(TypeGroupsParse, b),
		asynq.Queue(c.priority),
		asynq.TaskID(p.TaskID),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeGroupsParse, err)
	}
	return p.TaskID, nil
}

// EnqueueVkCollect queues a vk:collect task and returns its id. Monitoring
// runs go to the default queue so manual runs are not starved.
func (c *Client) EnqueueVkCollect(p VkCollectPayload) (string, error) {
	if p.TaskID == "" {
		p.TaskID = uuid.NewString()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	q := c.priority
	if p.Monitoring {
		q = c.queue
	}
	_, err = c.asynqCli.Enqueue(asynq.NewTask(TypeVkCollect, b),
		asynq.Queue(q),
		asynq.TaskID(p.TaskID),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeVkCollect, err)
	}
	return p.TaskID, nil
}

// Depth returns pending + in-flight counts across both queues.
func (c *Client) Depth() int {
	total := 0
	for _, name := range []string{c.queue, c.priority} {
		if q, err := c.inspector.GetQueueInfo(name); err == nil {
			total += q.Pending + q.Active + q.Scheduled + q.Retry
		}
		if c.queue == c.priority {
			break
		}
	}
	return total
}
