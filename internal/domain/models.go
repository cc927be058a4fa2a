package domain

import "time"

// TaskType distinguishes single-site crawls from bulk stale refreshes.
type TaskType string

const (
	TaskTypeCrawl       TaskType = "crawl"
	TaskTypeStaleUpdate TaskType = "stale_update"
)

// TaskStatus values are what the dashboard polls and color-codes.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether a task in this status can still change state.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Task is a unit of crawl work tracked in the crawl_tasks table.
// URL is empty for stale_update tasks.
type Task struct {
	ID           int64      `json:"id"`
	Type         TaskType   `json:"task_type"`
	URL          string     `json:"url,omitempty"`
	Depth        int        `json:"depth"`
	SameDomain   bool       `json:"same_domain"`
	StealthMode  bool       `json:"stealth_mode"`
	Status       TaskStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	PagesCrawled int        `json:"pages_crawled"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// AddTaskRequest is the payload of POST /add_task.
type AddTaskRequest struct {
	URL         string `json:"url"`
	Depth       int    `json:"depth"`
	SameDomain  bool   `json:"same_domain"`
	StealthMode bool   `json:"stealth_mode"`
}

// Page holds the indexed metadata for a crawled URL, keyed by its
// normalized form.
type Page struct {
	URL         string
	Title       string
	Description string
	Keywords    string
	FaviconID   string
	Priority    int
	LastCrawled *time.Time
}

// FetchResult is what a Fetcher hands back to the extraction pipeline.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
