package models

import (
	"encoding/json"
	"time"
)

// Task statuses. A task that finished with at least one item-level error but
// also at least one success ends as StatusCompletedWithErrors.
const (
	StatusPending             = "pending"
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
	StatusCancelled           = "cancelled"
)

// Task types matching the queue task names.
const (
	TaskTypeGroupsParse = "groups:parse"
	TaskTypeVkCollect   = "vk:collect"
)

// Group represents the 'groups' table (a VK community under collection).
type Group struct {
	ID           int64     `json:"id"`
	VkID         int64     `json:"vk_id"`
	ScreenName   string    `json:"screen_name"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	MembersCount int       `json:"members_count"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	IsClosed     bool      `json:"is_closed"`
	Deactivated  string    `json:"deactivated,omitempty"` // "deleted" or "banned"
	Monitored    bool      `json:"monitored"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Keyword represents the 'keywords' table. Active keywords are matched
// against newly collected comments by the monitor.
type Keyword struct {
	ID        int64     `json:"id"`
	Word      string    `json:"word"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Task represents the 'tasks' table. Progress fields are updated by workers
// after every batch; Processed never exceeds Total.
type Task struct {
	ID         string          `json:"id"` // uuid, doubles as the asynq task id
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Total      int             `json:"total"`
	Processed  int             `json:"processed"`
	ErrorCount int             `json:"error_count"`
	Error      string          `json:"error,omitempty"` // fatal error, if status=failed
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Percent returns task completion in [0, 100].
func (t Task) Percent() float64 {
	if t.Total <= 0 {
		return 0
	}
	p := float64(t.Processed) / float64(t.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// TaskError is a single accumulated item-level failure ('task_errors' table).
type TaskError struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Item      string    `json:"item"` // group identifier / post id the failure belongs to
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Post represents the 'posts' table (a VK wall post).
type Post struct {
	ID            int64     `json:"id"`
	VkID          int64     `json:"vk_id"`    // post id within the owner wall
	OwnerID       int64     `json:"owner_id"` // negative for groups, VK convention
	GroupID       int64     `json:"group_id"` // FK to groups.id
	FromID        int64     `json:"from_id"`
	Text          string    `json:"text"`
	PostedAt      time.Time `json:"posted_at"`
	CommentsCount int       `json:"comments_count"`
	LikesCount    int       `json:"likes_count"`
	RepostsCount  int       `json:"reposts_count"`
	ViewsCount    int       `json:"views_count"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Comment represents the 'comments' table.
type Comment struct {
	ID          int64     `json:"id"`
	VkID        int64     `json:"vk_id"`
	PostVkID    int64     `json:"post_vk_id"`
	OwnerID     int64     `json:"owner_id"`
	GroupID     int64     `json:"group_id"`
	FromID      int64     `json:"from_id"`
	Text        string    `json:"text"`
	PostedAt    time.Time `json:"posted_at"`
	LikesCount  int       `json:"likes_count"`
	CollectedAt time.Time `json:"collected_at"`
}

// MonitoringSetting represents the 'monitoring_settings' table. One row per
// monitored group; the scheduler enqueues a collect task whenever
// now >= LastRunAt + Interval.
type MonitoringSetting struct {
	GroupID         int64      `json:"group_id"`
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	PostsDepth      int        `json:"posts_depth"` // how many recent posts to re-check
	WithComments    bool       `json:"with_comments"`
	WebhookURL      string     `json:"webhook_url,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Notification represents the 'notifications' table: a keyword matched a
// newly collected comment.
type Notification struct {
	ID          int64      `json:"id"`
	GroupID     int64      `json:"group_id"`
	KeywordID   int64      `json:"keyword_id"`
	Keyword     string     `json:"keyword"`
	CommentID   int64      `json:"comment_id"`
	CommentText string     `json:"comment_text"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// APIKey represents the 'api_keys' table. Only the SHA-256 hash of the key
// is stored.
type APIKey struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardStats is the aggregate payload for the dashboard landing page.
type DashboardStats struct {
	Groups          int64            `json:"groups"`
	MonitoredGroups int64            `json:"monitored_groups"`
	Posts           int64            `json:"posts"`
	Comments        int64            `json:"comments"`
	Keywords        int64            `json:"keywords"`
	Notifications   int64            `json:"notifications"`
	TasksByStatus   map[string]int64 `json:"tasks_by_status"`
	TopGroups       []GroupActivity  `json:"top_groups"`
	DailyCollected  []DailyCount     `json:"daily_collected"`
}

// GroupActivity is a row of the "top groups by collected posts" widget.
type GroupActivity struct {
	GroupID  int64  `json:"group_id"`
	Name     string `json:"name"`
	Posts    int64  `json:"posts"`
	Comments int64  `json:"comments"`
}

// DailyCount is a day bucket of collected items.
type DailyCount struct {
	Day      time.Time `json:"day"`
	Posts    int64     `json:"posts"`
	Comments int64     `json:"comments"`
}
