package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// EventStream delivers an ordered, resumable, multi-subscriber progress feed
// per job. Events are delivered at least once; subscribers must be idempotent
// on EventID.
type EventStream interface {
	// Publish appends the event to the job's log and fans it out to live
	// subscribers. Returns the allocated EventID.
	Publish(ctx context.Context, jobID string, eventType models.EventType, payload map[string]interface{}) (uint64, error)

	// Subscribe replays events with EventID > sinceID, then forwards new ones
	// until the context is cancelled or a terminal event is delivered. Slow
	// subscribers are disconnected after a bounded buffer overflow; the event
	// log remains the source of truth for resumption.
	Subscribe(ctx context.Context, jobID string, sinceID uint64) (<-chan *models.ProgressEvent, error)
}
