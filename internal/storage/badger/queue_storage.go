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

// QueueStorage implements the QueueStorage interface for Badger.
//
// All state mutation runs under one mutex so that concurrent ClaimBatch calls
// observe disjoint pending sets and Counts sees pending and in-flight
// atomically. The store itself provides durability across restarts.
type QueueStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	mu   sync.Mutex
	seqs map[string]uint64 // per-job FIFO sequence
}

// queueDedup marks a (job_id, url_hash) pair as enqueued.
// Key format: "<job_id>:<url_hash>".
type queueDedup struct {
	JobID string `badgerhold:"index"`
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
		seqs:   make(map[string]uint64),
	}
}

func (s *QueueStorage) Enqueue(ctx context.Context, jobID string, items []*models.QueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, item := range items {
		if item.JobID == "" {
			item.JobID = jobID
		}
		dedupKey := item.DedupKey()

		var existing queueDedup
		err := s.db.Store().Get(dedupKey, &existing)
		if err == nil {
			continue // (job_id, url_hash) already enqueued
		}
		if err != badgerhold.ErrNotFound {
			return inserted, fmt.Errorf("failed to check queue dedup: %w", err)
		}

		s.seqs[jobID]++
		item.Seq = s.seqs[jobID]
		item.State = models.ItemStatePending
		item.EnqueuedAt = time.Now()

		if err := s.db.Store().Insert(dedupKey, &queueDedup{JobID: jobID}); err != nil {
			return inserted, fmt.Errorf("failed to insert queue dedup: %w", err)
		}
		if err := s.db.Store().Insert(item.ID, item); err != nil {
			return inserted, fmt.Errorf("failed to insert queue item: %w", err)
		}
		inserted++
	}

	return inserted, nil
}

func (s *QueueStorage) ClaimBatch(ctx context.Context, jobID string, n int) ([]*models.QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Breadth-first by depth, then FIFO within a depth
	var pending []models.QueueItem
	query := badgerhold.Where("JobID").Eq(jobID).
		And("State").Eq(models.ItemStatePending).
		SortBy("Depth", "Seq").
		Limit(n)
	if err := s.db.Store().Find(&pending, query); err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}

	now := time.Now()
	claimed := make([]*models.QueueItem, 0, len(pending))
	for i := range pending {
		item := pending[i]
		item.State = models.ItemStateInFlight
		item.ClaimedAt = &now
		if err := s.db.Store().Update(item.ID, &item); err != nil {
			s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to claim queue item")
			continue
		}
		claimed = append(claimed, &item)
	}

	return claimed, nil
}

func (s *QueueStorage) Complete(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.terminate(itemID, models.ItemStateCompleted, "")
}

func (s *QueueStorage) Fail(ctx context.Context, itemID string, errMsg string, retryable bool, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var item models.QueueItem
	if err := s.db.Store().Get(itemID, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("queue item not found: %s", itemID)
		}
		return fmt.Errorf("failed to get queue item: %w", err)
	}

	item.Attempts++
	item.Error = errMsg

	if retryable && item.Attempts < maxRetries {
		// Back to pending for redelivery; a fresh claim picks it up
		item.State = models.ItemStatePending
		item.ClaimedAt = nil
	} else {
		item.State = models.ItemStateFailed
	}

	if err := s.db.Store().Update(itemID, &item); err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return nil
}

func (s *QueueStorage) terminate(itemID string, state models.QueueItemState, errMsg string) error {
	var item models.QueueItem
	if err := s.db.Store().Get(itemID, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("queue item not found: %s", itemID)
		}
		return fmt.Errorf("failed to get queue item: %w", err)
	}

	item.State = state
	if errMsg != "" {
		item.Error = errMsg
	}
	if err := s.db.Store().Update(itemID, &item); err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return nil
}

func (s *QueueStorage) PendingCount(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countState(jobID, models.ItemStatePending)
}

func (s *QueueStorage) InFlightCount(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countState(jobID, models.ItemStateInFlight)
}

func (s *QueueStorage) Counts(ctx context.Context, jobID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.countState(jobID, models.ItemStatePending)
	if err != nil {
		return 0, 0, err
	}
	inFlight, err := s.countState(jobID, models.ItemStateInFlight)
	if err != nil {
		return 0, 0, err
	}
	return pending, inFlight, nil
}

func (s *QueueStorage) countState(jobID string, state models.QueueItemState) (int, error) {
	count, err := s.db.Store().Count(&models.QueueItem{},
		badgerhold.Where("JobID").Eq(jobID).And("State").Eq(state))
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return int(count), nil
}

func (s *QueueStorage) DeleteJobItems(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Store().DeleteMatching(&models.QueueItem{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete queue items: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&queueDedup{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete queue dedup markers: %w", err)
	}
	delete(s.seqs, jobID)
	return nil
}
