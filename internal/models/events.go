package models

import (
	"encoding/gob"
	"fmt"
	"time"
)

func init() {
	// Event payloads travel through gob inside interface values
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// EventType enumerates the progress stream event names. The names are part of
// the wire contract.
type EventType string

const (
	EventStreamConnected  EventType = "stream_connected"
	EventURLStarted       EventType = "url_started"
	EventURLCrawled       EventType = "url_crawled"
	EventURLFailed        EventType = "url_failed"
	EventURLSkipped       EventType = "url_skipped"
	EventURLsDiscovered   EventType = "urls_discovered"
	EventSentToProcessing EventType = "sent_to_processing"
	EventProgress         EventType = "progress"
	EventTimeUpdate       EventType = "time_update"
	EventJobCompleted     EventType = "job_completed"
	EventJobFailed        EventType = "job_failed"
	EventJobTimeout       EventType = "job_timeout"
)

// IsTerminal reports whether the event type closes the stream
func (t EventType) IsTerminal() bool {
	switch t {
	case EventJobCompleted, EventJobFailed, EventJobTimeout:
		return true
	}
	return false
}

// ProgressEvent is one entry of a job's append-only event log.
// EventID is strictly increasing per job and allocated by the log.
type ProgressEvent struct {
	EventID   uint64                 `json:"event_id"`
	JobID     string                 `json:"job_id" badgerhold:"index"`
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// Payload constructors keep event shapes consistent across publishers.

func StreamConnectedPayload(jobID, url string) map[string]interface{} {
	return map[string]interface{}{"job_id": jobID, "url": url}
}

func URLStartedPayload(url string, depth int) map[string]interface{} {
	return map[string]interface{}{"url": url, "depth": depth}
}

func URLCrawledPayload(url string, success bool, contentLength int, title string, quality *QualityScore, fromCache bool) map[string]interface{} {
	payload := map[string]interface{}{
		"url":            url,
		"success":        success,
		"content_length": contentLength,
	}
	if title != "" {
		payload["title"] = title
	}
	if quality != nil {
		payload["quality"] = map[string]interface{}{
			"score":  quality.Score,
			"reason": quality.Reason,
		}
	}
	if fromCache {
		payload["from_cache"] = true
	}
	return payload
}

func URLFailedPayload(url, errMsg string) map[string]interface{} {
	return map[string]interface{}{"url": url, "error": errMsg}
}

func URLSkippedPayload(url, reason string) map[string]interface{} {
	return map[string]interface{}{"url": url, "reason": reason}
}

func URLsDiscoveredPayload(sourceURL string, discovered []string, totalDiscovered int) map[string]interface{} {
	return map[string]interface{}{
		"source_url":       sourceURL,
		"discovered_urls":  discovered,
		"count":            len(discovered),
		"total_discovered": totalDiscovered,
	}
}

func SentToProcessingPayload(url string) map[string]interface{} {
	return map[string]interface{}{"url": url}
}

func ProgressPayload(c JobCounters, pending int) map[string]interface{} {
	return map[string]interface{}{
		"processed":  c.Processed,
		"discovered": c.Discovered,
		"queued":     c.Queued,
		"pending":    pending,
	}
}

func TimeUpdatePayload(elapsed time.Duration, c JobCounters, queueSize, pending int) map[string]interface{} {
	return map[string]interface{}{
		"elapsed":         int64(elapsed / time.Second),
		"formatted":       formatElapsed(elapsed),
		"totalProcessed":  c.Processed,
		"totalDiscovered": c.Discovered,
		"queueSize":       queueSize,
		"pendingCount":    pending,
	}
}

func JobCompletedPayload(jobID string, c JobCounters) map[string]interface{} {
	return map[string]interface{}{
		"job_id":           jobID,
		"total_processed":  c.Processed,
		"total_discovered": c.Discovered,
	}
}

func JobFailedPayload(jobID, errMsg string, c JobCounters) map[string]interface{} {
	return map[string]interface{}{
		"job_id":           jobID,
		"error":            errMsg,
		"total_processed":  c.Processed,
		"total_discovered": c.Discovered,
	}
}

func JobTimeoutPayload(jobID string, c JobCounters, message string) map[string]interface{} {
	return map[string]interface{}{
		"job_id":           jobID,
		"total_processed":  c.Processed,
		"total_discovered": c.Discovered,
		"message":          message,
	}
}

// formatElapsed renders a duration as m:ss for time_update events
func formatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
