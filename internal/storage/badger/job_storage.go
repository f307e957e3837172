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

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Per-job page result sequence counters
	seqMu sync.Mutex
	seqs  map[string]uint64
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
		seqs:   make(map[string]uint64),
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.CrawlJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	job.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	var job models.CrawlJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) UpdateJob(ctx context.Context, job *models.CrawlJob) error {
	return s.SaveJob(ctx, job)
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.CrawlJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.UserID != "" {
			query = query.And("UserID").Eq(opts.UserID)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Active {
			query = query.And("Status").In(models.JobStatusPending, models.JobStatusRunning)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if opts.OrderDir == "DESC" {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	}

	var jobs []models.CrawlJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.CrawlJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.CrawlJob{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	// Cascade-delete the job's page results
	if err := s.db.Store().DeleteMatching(&models.PageResult{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete page results")
	}

	s.seqMu.Lock()
	delete(s.seqs, jobID)
	s.seqMu.Unlock()

	return nil
}

func (s *JobStorage) SavePageResult(ctx context.Context, result *models.PageResult) error {
	if result.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.seqMu.Lock()
	s.seqs[result.JobID]++
	result.Seq = s.seqs[result.JobID]
	s.seqMu.Unlock()

	key := fmt.Sprintf("%s:%012d", result.JobID, result.Seq)
	if err := s.db.Store().Upsert(key, result); err != nil {
		return fmt.Errorf("failed to save page result: %w", err)
	}
	return nil
}

func (s *JobStorage) ListPageResults(ctx context.Context, jobID string) ([]*models.PageResult, error) {
	var results []models.PageResult
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("Seq")
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list page results: %w", err)
	}

	out := make([]*models.PageResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
