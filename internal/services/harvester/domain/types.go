// Package domain holds the task/post/checkpoint model and the legal-transition
// state machine at the core of the harvester
package domain

import "time"

// Status is a task's lifecycle state
type Status string

// The full set of task states. Transitions between them are enforced by CanTransition.
const (
	StatusCreated             Status = "Created"
	StatusHistoryCrawling     Status = "HistoryCrawling"
	StatusHistoryCompleted    Status = "HistoryCompleted"
	StatusIncrementalCrawling Status = "IncrementalCrawling"
	StatusPaused              Status = "Paused"
	StatusFailed              Status = "Failed"
)

// Direction is the crawl engine's sweep direction
type Direction string

const (
	// DirectionBackward sweeps from the event start time toward now, most recent shard first
	DirectionBackward Direction = "backward"
	// DirectionForward tails newly published posts from the last known max forward to now
	DirectionForward Direction = "forward"
)

// MaxPage is the hard paging cap per shard
const MaxPage = 50

// CredentialsFreshnessWindow bounds how stale validated_at may be at create_task time
const CredentialsFreshnessWindow = 7 * 24 * time.Hour

// Task is a user-specified crawl job
type Task struct {
	ID             string
	Keyword        string
	UID            string
	EventStartTime time.Time
	Status         Status
	MinPostTime    *time.Time
	MaxPostTime    *time.Time
	CrawledCount   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FailureReason  *string

	// LastDirection records which sweep direction last ran, so Paused → start_crawl
	// knows whether to resume HistoryCrawling or IncrementalCrawling.
	LastDirection Direction
}

// Post is a single collected item, unique within a task by ID
type Post struct {
	ID               string
	TaskID           string
	Text             string
	CreatedAt        time.Time
	AuthorUID        string
	AuthorScreenName string
	RepostsCount     int64
	CommentsCount    int64
	AttitudesCount   int64
}

// Shard is a contiguous, hour-aligned time sub-window of a crawl plan
type Shard struct {
	Start time.Time
	End   time.Time
}

// Checkpoint is the engine's only persistent local state for an in-progress sweep
type Checkpoint struct {
	TaskID          string
	Direction       Direction
	ShardStart      time.Time
	ShardEnd        time.Time
	CurrentPage     int
	CompletedShards []Shard
	SavedAt         time.Time
}

// Credentials is an opaque per-user session snapshot consumed, never owned, by the engine
type Credentials struct {
	UID         string
	Cookies     map[string]string
	ValidatedAt time.Time
}

// Fresh reports whether the credentials were validated within the freshness window as of now
func (c Credentials) Fresh(now time.Time) bool {
	return now.Sub(c.ValidatedAt) <= CredentialsFreshnessWindow
}

// TaskFilter narrows list_tasks results
type TaskFilter struct {
	Status *Status
}

// SortField is a list_tasks sort column
type SortField string

const (
	SortByCreatedAt    SortField = "created_at"
	SortByUpdatedAt    SortField = "updated_at"
	SortByCrawledCount SortField = "crawled_count"
)

// SortOrder is ascending or descending
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions bundles filter, sort and pagination for list_tasks
type ListOptions struct {
	Filter   TaskFilter
	SortBy   SortField
	Order    SortOrder
	Limit    int
	Offset   int
}

// RawPost is what the fetcher adapter returns before normalization
type RawPost struct {
	ID               string
	Text             string
	CreatedAtWire    string // provider wire-time format, "YYYY-MM-DD HH:MM:SS" UTC
	AuthorUID        string
	AuthorScreenName string
	RepostsCount     int64
	CommentsCount    int64
	AttitudesCount   int64
}

// FetchResult is one page response from the fetcher adapter
type FetchResult struct {
	Posts     []RawPost
	HasMore   bool
	Captcha   bool
	TotalHint *uint64
}
