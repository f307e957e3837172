package models

import (
	"time"
)

// JobStatus represents the state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout, JobStatusCancelled:
		return true
	}
	return false
}

// JobCounters tracks per-job URL accounting.
// Invariant: Processed + Failed + Skipped + Filtered <= Queued <= Discovered.
type JobCounters struct {
	Discovered int `json:"discovered"`
	Queued     int `json:"queued"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Filtered   int `json:"filtered"`
}

// CrawlJob represents one documentation crawl. Options are snapshot at job
// creation time for self-contained, re-runnable jobs.
type CrawlJob struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id" badgerhold:"index"`
	SeedURL       string       `json:"seed_url"`
	Options       CrawlOptions `json:"options"`
	Status        JobStatus    `json:"status" badgerhold:"index"`
	Counters      JobCounters  `json:"counters"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Error         string       `json:"error,omitempty"`
	FinalMarkdown string       `json:"final_markdown,omitempty"`
	TotalWords    int          `json:"total_words,omitempty"`
}

// CanTransitionTo enforces the monotonic status progression
// pending -> running -> {completed|failed|timeout|cancelled}.
// Terminal states are absorbing.
func (j *CrawlJob) CanTransitionTo(next JobStatus) bool {
	if j.Status.IsTerminal() {
		return false
	}
	switch j.Status {
	case JobStatusPending:
		return next == JobStatusRunning || next.IsTerminal()
	case JobStatusRunning:
		return next.IsTerminal()
	}
	return false
}

// Statistics is the compact per-job summary returned by the active-jobs listing
type Statistics struct {
	Discovered int `json:"discovered"`
	Queued     int `json:"queued"`
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Filtered   int `json:"filtered"`
	TotalWords int `json:"total_words,omitempty"`
}

// Stats builds the summary view of the job's counters
func (j *CrawlJob) Stats() Statistics {
	return Statistics{
		Discovered: j.Counters.Discovered,
		Queued:     j.Counters.Queued,
		Processed:  j.Counters.Processed,
		Failed:     j.Counters.Failed,
		Skipped:    j.Counters.Skipped,
		Filtered:   j.Counters.Filtered,
		TotalWords: j.TotalWords,
	}
}
