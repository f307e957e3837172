// -----------------------------------------------------------------------
// Last Modified: Monday, 24th November 2025 6:15:58 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/crawler"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ErrNotFound covers both unknown jobs and cross-user access so existence
// never leaks across users.
var ErrNotFound = errors.New("job not found")

// ErrNoContent is returned when a job has no final markdown to download
var ErrNoContent = errors.New("no final markdown available")

// Service is the job registry: it creates jobs, spawns an orchestrator per
// active job, and gates every access on the owning user.
type Service struct {
	config    *common.Config
	storage   interfaces.StorageManager
	stream    interfaces.EventStream
	fetcher   *crawler.Fetcher
	extractor *crawler.Extractor
	sitemap   *crawler.SitemapDiscoverer
	logger    arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*Orchestrator
}

// NewService creates the job registry with its shared crawl subsystems
func NewService(config *common.Config, storage interfaces.StorageManager, stream interfaces.EventStream, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := crawler.NewFetcher(
		config.Crawler.UserAgent,
		config.Crawler.RateLimit,
		int64(config.Crawler.MaxBodySize),
		logger,
	)

	return &Service{
		config:    config,
		storage:   storage,
		stream:    stream,
		fetcher:   fetcher,
		extractor: crawler.NewExtractor(logger),
		sitemap:   crawler.NewSitemapDiscoverer(fetcher.Client(), fetcher.Robots(), config.Crawler.SitemapTimeout, logger),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*Orchestrator),
	}
}

// allowPrivateSeeds relaxes the SSRF guard for development environments
func (s *Service) allowPrivateSeeds() bool {
	return s.config.Environment == "development"
}

// defaultOptions derives the per-job option defaults from service config
func (s *Service) defaultOptions() models.CrawlOptions {
	opts := models.DefaultCrawlOptions()
	opts.MaxDepth = s.config.Crawler.MaxDepth
	opts.MaxPages = s.config.Crawler.MaxPages
	opts.TimeoutMs = int(s.config.Crawler.JobTimeout / time.Millisecond)
	opts.PageTimeoutMs = int(s.config.Crawler.PageTimeout / time.Millisecond)
	opts.RateLimitMs = int(s.config.Crawler.RateLimit / time.Millisecond)
	opts.MaxConcurrentRequests = s.config.Crawler.MaxConcurrency
	opts.MaxRetries = s.config.Crawler.MaxRetries
	opts.QualityThreshold = s.config.Crawler.QualityThreshold
	opts.RespectRobots = s.config.Crawler.RespectRobots
	opts.UseSitemap = s.config.Crawler.UseSitemap
	return opts
}

// Create validates the request, persists the job, and starts its orchestrator
func (s *Service) Create(ctx context.Context, userID, seedURL string, patch *models.CrawlOptionsPatch) (*models.CrawlJob, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	if err := common.ValidateSeedURL(seedURL, s.allowPrivateSeeds()); err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}

	options := patch.Apply(s.defaultOptions())
	if err := options.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &models.CrawlJob{
		ID:        common.NewJobID(),
		UserID:    userID,
		SeedURL:   seedURL,
		Options:   options,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	orch, err := NewOrchestrator(job, s.storage, s.stream, s.fetcher, s.extractor, s.sitemap, s.logger)
	if err != nil {
		return nil, err
	}
	orch.allowPrivateSeeds = s.allowPrivateSeeds()

	s.mu.Lock()
	s.active[job.ID] = orch
	s.mu.Unlock()

	go func() {
		orch.Run(s.ctx)

		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
	}()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("seed_url", seedURL).
		Msg("Crawl job created")

	return job, nil
}

// Get returns the job if it exists and belongs to the user
func (s *Service) Get(ctx context.Context, userID, jobID string) (*models.CrawlJob, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// ListActive enumerates the user's pending and running jobs
func (s *Service) ListActive(ctx context.Context, userID string) ([]*models.CrawlJob, error) {
	return s.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{
		UserID: userID,
		Active: true,
	})
}

// List enumerates all of the user's jobs, newest first
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*models.CrawlJob, error) {
	return s.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
}

// Cancel requests cooperative cancellation of a running job
func (s *Service) Cancel(ctx context.Context, userID, jobID string) error {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil // already terminal; cancellation is idempotent
	}

	s.mu.Lock()
	orch, ok := s.active[jobID]
	s.mu.Unlock()

	if ok {
		orch.Cancel()
	} else {
		// Orchestrator lost (e.g. process restart): mark terminal directly
		job.Status = models.JobStatusCancelled
		now := time.Now()
		job.CompletedAt = &now
		if err := s.storage.JobStorage().UpdateJob(ctx, job); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("user_id", userID).
		Msg("Job cancellation requested")

	return nil
}

// Download returns the consolidated Markdown artifact
func (s *Service) Download(ctx context.Context, userID, jobID string) (string, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return "", err
	}
	if job.FinalMarkdown == "" {
		return "", ErrNoContent
	}
	return job.FinalMarkdown, nil
}

// Results returns the per-URL page results of a job
func (s *Service) Results(ctx context.Context, userID, jobID string) ([]*models.PageResult, error) {
	if _, err := s.Get(ctx, userID, jobID); err != nil {
		return nil, err
	}
	return s.storage.JobStorage().ListPageResults(ctx, jobID)
}

// Stats aggregates the user's job counts by status
func (s *Service) Stats(ctx context.Context, userID string) (map[string]int, error) {
	jobs, err := s.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{UserID: userID})
	if err != nil {
		return nil, err
	}

	stats := map[string]int{"total": len(jobs)}
	for _, job := range jobs {
		stats[string(job.Status)]++
	}
	return stats, nil
}

// PurgeExpired deletes terminal jobs older than the retention window,
// cascading to their queue items and events. Called by the retention sweeper.
func (s *Service) PurgeExpired(ctx context.Context, jobTTL time.Duration) (int, error) {
	jobs, err := s.storage.JobStorage().ListJobs(ctx, nil)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-jobTTL)
	purged := 0
	for _, job := range jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
			continue
		}
		if err := s.storage.QueueStorage().DeleteJobItems(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge queue items")
		}
		if err := s.storage.EventStorage().DeleteJobEvents(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge events")
		}
		if err := s.storage.JobStorage().DeleteJob(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to purge job")
			continue
		}
		purged++
	}

	return purged, nil
}

// Stop cancels all active orchestrators and waits for them to terminate
func (s *Service) Stop() {
	s.mu.Lock()
	orchestrators := make([]*Orchestrator, 0, len(s.active))
	for _, orch := range s.active {
		orchestrators = append(orchestrators, orch)
	}
	s.mu.Unlock()

	for _, orch := range orchestrators {
		orch.Cancel()
	}
	for _, orch := range orchestrators {
		<-orch.Done()
	}

	s.cancel()
	s.logger.Info().Int("jobs_stopped", len(orchestrators)).Msg("Job service stopped")
}
