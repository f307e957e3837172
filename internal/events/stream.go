package events

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// subscriberBuffer bounds how far a live subscriber may lag before it is
// disconnected. The event log remains the source of truth for resumption.
const subscriberBuffer = 64

// subscriber is one live consumer of a job's event feed
type subscriber struct {
	jobID string
	live  chan *models.ProgressEvent
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.live) })
}

// Stream implements the per-job progress feed: publish appends to the
// append-only log and fans out to live subscribers; subscribe replays the log
// past a resume point before forwarding new events.
type Stream struct {
	storage interfaces.EventStorage
	logger  arbor.ILogger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewStream creates an event stream over the given log storage
func NewStream(storage interfaces.EventStorage, logger arbor.ILogger) *Stream {
	return &Stream{
		storage: storage,
		logger:  logger,
		subs:    make(map[string]map[*subscriber]struct{}),
	}
}

// Publish appends the event to the job's log (which allocates the monotonic
// EventID) and then fans it out. Publish failures at the fan-out stage are
// non-fatal; the log is authoritative.
func (s *Stream) Publish(ctx context.Context, jobID string, eventType models.EventType, payload map[string]interface{}) (uint64, error) {
	event := &models.ProgressEvent{
		JobID:     jobID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	id, err := s.storage.Append(ctx, event)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	var slow []*subscriber
	for sub := range s.subs[jobID] {
		select {
		case sub.live <- event:
		default:
			// Buffer overflow - drop the subscriber; it can resume from the log
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		delete(s.subs[jobID], sub)
	}
	s.mu.Unlock()

	for _, sub := range slow {
		sub.close()
		s.logger.Warn().
			Str("job_id", jobID).
			Msg("Disconnected slow event subscriber")
	}

	return id, nil
}

// Subscribe returns a channel that first replays all events with
// EventID > sinceID and then forwards live events in order. The channel is
// closed after a terminal event, on context cancellation, or when the
// subscriber falls too far behind.
func (s *Stream) Subscribe(ctx context.Context, jobID string, sinceID uint64) (<-chan *models.ProgressEvent, error) {
	sub := &subscriber{
		jobID: jobID,
		live:  make(chan *models.ProgressEvent, subscriberBuffer),
	}

	// Register before replay so no event published during replay is lost;
	// duplicates are filtered by EventID below.
	s.mu.Lock()
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[*subscriber]struct{})
	}
	s.subs[jobID][sub] = struct{}{}
	s.mu.Unlock()

	out := make(chan *models.ProgressEvent, subscriberBuffer)

	go func() {
		defer close(out)
		defer s.unsubscribe(sub)

		lastDelivered := sinceID

		replay, err := s.storage.ListSince(ctx, jobID, sinceID)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("Event replay failed")
			return
		}

		for _, event := range replay {
			select {
			case out <- event:
				lastDelivered = event.EventID
				if event.Type.IsTerminal() {
					return
				}
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case event, ok := <-sub.live:
				if !ok {
					return
				}
				if event.EventID <= lastDelivered {
					continue // already seen during replay
				}
				select {
				case out <- event:
					lastDelivered = event.EventID
					if event.Type.IsTerminal() {
						return
					}
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Stream) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	if set, ok := s.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, sub.jobID)
		}
	}
	s.mu.Unlock()
}
