package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage implements the append-only per-job event log for Badger.
// EventIDs are allocated by the log under a lock, never by publishers.
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	mu     sync.Mutex
	nextID map[string]uint64
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
		nextID: make(map[string]uint64),
	}
}

func (s *EventStorage) Append(ctx context.Context, event *models.ProgressEvent) (uint64, error) {
	if event.JobID == "" {
		return 0, fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextID[event.JobID]
	if !ok {
		// Recover the counter from the store after a restart
		last, err := s.lastEventID(event.JobID)
		if err != nil {
			return 0, err
		}
		next = last
	}
	next++

	event.EventID = next
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	key := fmt.Sprintf("%s:%012d", event.JobID, event.EventID)
	if err := s.db.Store().Insert(key, event); err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	s.nextID[event.JobID] = next
	return next, nil
}

func (s *EventStorage) lastEventID(jobID string) (uint64, error) {
	var events []models.ProgressEvent
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("EventID").Reverse().Limit(1)
	if err := s.db.Store().Find(&events, query); err != nil {
		return 0, fmt.Errorf("failed to read last event: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[0].EventID, nil
}

func (s *EventStorage) ListSince(ctx context.Context, jobID string, sinceID uint64) ([]*models.ProgressEvent, error) {
	var events []models.ProgressEvent
	query := badgerhold.Where("JobID").Eq(jobID).And("EventID").Gt(sinceID).SortBy("EventID")
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	out := make([]*models.ProgressEvent, len(events))
	for i := range events {
		out[i] = &events[i]
	}
	return out, nil
}

func (s *EventStorage) DeleteJobEvents(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().DeleteMatching(&models.ProgressEvent{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	delete(s.nextID, jobID)
	return nil
}
