package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// JobListOptions filters job listings
type JobListOptions struct {
	UserID   string
	Status   models.JobStatus
	Active   bool // pending or running only
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage persists crawl jobs
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.CrawlJob) error
	GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error)
	UpdateJob(ctx context.Context, job *models.CrawlJob) error
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.CrawlJob, error)
	DeleteJob(ctx context.Context, jobID string) error

	SavePageResult(ctx context.Context, result *models.PageResult) error
	ListPageResults(ctx context.Context, jobID string) ([]*models.PageResult, error)
}

// QueueStorage persists per-job URL queues with atomic claim semantics
type QueueStorage interface {
	// Enqueue inserts items whose (job_id, url_hash) is new and returns the
	// count actually inserted. Insertion order assigns the FIFO sequence.
	Enqueue(ctx context.Context, jobID string, reqs []*models.QueueItem) (int, error)

	// ClaimBatch atomically transitions up to n pending items to in_flight,
	// breadth-first by depth then FIFO within a depth. A pending item is
	// visible to at most one claimer.
	ClaimBatch(ctx context.Context, jobID string, n int) ([]*models.QueueItem, error)

	// Complete terminates an item successfully.
	Complete(ctx context.Context, itemID string) error

	// Fail terminates an item, or resets it to pending with an incremented
	// attempt count when retryable and attempts < maxRetries.
	Fail(ctx context.Context, itemID string, errMsg string, retryable bool, maxRetries int) error

	PendingCount(ctx context.Context, jobID string) (int, error)
	InFlightCount(ctx context.Context, jobID string) (int, error)

	// Counts returns pending and in-flight counts under one lock acquisition
	// so completion detection observes both atomically.
	Counts(ctx context.Context, jobID string) (pending int, inFlight int, err error)

	DeleteJobItems(ctx context.Context, jobID string) error
}

// CacheStorage is the cross-job URL cache with TTL semantics.
// Failures of the underlying store must degrade to cache miss.
type CacheStorage interface {
	Get(ctx context.Context, normalizedURL string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	Invalidate(ctx context.Context, normalizedURL string) error
	Clear(ctx context.Context) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// EventStorage is the append-only per-job event log
type EventStorage interface {
	// Append stores the event and allocates its per-job monotonic EventID.
	Append(ctx context.Context, event *models.ProgressEvent) (uint64, error)

	// ListSince returns events with EventID > sinceID in EventID order.
	ListSince(ctx context.Context, jobID string, sinceID uint64) ([]*models.ProgressEvent, error)

	DeleteJobEvents(ctx context.Context, jobID string) error
}

// StorageManager bundles the per-store interfaces over one database
type StorageManager interface {
	JobStorage() JobStorage
	QueueStorage() QueueStorage
	CacheStorage() CacheStorage
	EventStorage() EventStorage
	Close() error
}
