package domain

import (
	"context"
	"encoding/json"
	"time"
)

// TaskStore is the durable record of every task's identity, status and counters
type TaskStore interface {
	Create(ctx context.Context, t *Task) error
	Load(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, opts ListOptions) ([]*Task, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, failureReason *string, direction Direction) error
	UpdateProgress(ctx context.Context, id string, postTime time.Time, addedCount int64) error
	Delete(ctx context.Context, id string) error
}

// PostStore is the durable, deduplicated, time-indexed post record
type PostStore interface {
	SavePosts(ctx context.Context, taskID string, posts []Post) (inserted int64, err error)
	Exists(ctx context.Context, taskID, postID string) (bool, error)
	Range(ctx context.Context, taskID string, lo, hi time.Time, desc bool) ([]Post, error)
	Count(ctx context.Context, taskID string) (int64, error)
	TimeBounds(ctx context.Context, taskID string) (min, max *time.Time, err error)
	DeleteByTask(ctx context.Context, taskID string) error
}

// CheckpointStore is the at-most-one-per-task record of the in-progress shard and page
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, taskID string) (*Checkpoint, error)
	Delete(ctx context.Context, taskID string) error
}

// Fetcher requests a single page of results for (keyword, window, page, credentials)
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, start, end time.Time, page int, creds Credentials) (FetchResult, error)
}

// CredentialStore supplies session cookies for a user, consumed not owned
type CredentialStore interface {
	Query(ctx context.Context, uid string) (Credentials, error)
}

// CredentialSnapshotStore persists the immutable credentials snapshot a task was
// created with. create_task writes it once; start_crawl only ever reads it back,
// never re-queries CredentialStore, so a later cookie rotation can't change what
// an existing task runs with.
type CredentialSnapshotStore interface {
	Save(ctx context.Context, taskID string, creds Credentials) error
	Load(ctx context.Context, taskID string) (Credentials, error)
	Delete(ctx context.Context, taskID string) error
}

// ProgressEvent is emitted on every page completion
type ProgressEvent struct {
	TaskID       string    `json:"task_id"`
	Status       Status    `json:"status"`
	ShardStart   time.Time `json:"-"`
	ShardEnd     time.Time `json:"-"`
	Page         int       `json:"page"`
	CrawledCount int64     `json:"crawled_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarshalJSON nests ShardStart/ShardEnd under a "shard" object per the wire schema
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	type shard struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	type wire struct {
		TaskID       string    `json:"task_id"`
		Status       Status    `json:"status"`
		Shard        shard     `json:"shard"`
		Page         int       `json:"page"`
		CrawledCount int64     `json:"crawled_count"`
		Timestamp    time.Time `json:"timestamp"`
	}
	return json.Marshal(wire{
		TaskID:       e.TaskID,
		Status:       e.Status,
		Shard:        shard{Start: e.ShardStart, End: e.ShardEnd},
		Page:         e.Page,
		CrawledCount: e.CrawledCount,
		Timestamp:    e.Timestamp,
	})
}

// CompletedEvent is emitted on reaching a terminal non-failure status
type CompletedEvent struct {
	TaskID         string  `json:"task_id"`
	FinalStatus    Status  `json:"final_status"`
	TotalCrawled   int64   `json:"total_crawled"`
	DurationSecond float64 `json:"duration_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrorEvent is emitted on any fatal or captcha event
type ErrorEvent struct {
	TaskID    string    `json:"task_id"`
	Code      string    `json:"error_code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EventEmitter delivers progress/completion/error events to the external UI
// Delivery is best-effort; event loss must never corrupt persisted state.
type EventEmitter interface {
	Progress(ev ProgressEvent)
	Completed(ev CompletedEvent)
	Error(ev ErrorEvent)
}
