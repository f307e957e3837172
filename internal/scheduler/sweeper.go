package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
)

// Sweeper runs the retention schedule: expired cache entries are purged and
// terminal jobs past the retention window are deleted along with their queue
// items and events.
type Sweeper struct {
	config  *common.RetentionConfig
	jobs    *jobs.Service
	cache   interfaces.CacheStorage
	cron    *cron.Cron
	logger  arbor.ILogger
	entryID cron.EntryID
}

// NewSweeper creates the retention sweeper
func NewSweeper(config *common.RetentionConfig, jobService *jobs.Service, cache interfaces.CacheStorage, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		config: config,
		jobs:   jobService,
		cache:  cache,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	entryID, err := s.cron.AddFunc(s.config.Schedule, s.sweep)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Dur("job_ttl", s.config.JobTTL).
		Msg("Retention sweeper started")

	return nil
}

// Stop halts the schedule; a sweep in progress finishes
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Retention sweeper stopped")
}

// sweep performs one retention pass
func (s *Sweeper) sweep() {
	ctx := context.Background()
	start := time.Now()

	cachePurged, err := s.cache.PurgeExpired(ctx, time.Now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache purge failed")
	}

	jobsPurged, err := s.jobs.PurgeExpired(ctx, s.config.JobTTL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Job purge failed")
	}

	if cachePurged > 0 || jobsPurged > 0 {
		s.logger.Info().
			Int("cache_entries", cachePurged).
			Int("jobs", jobsPurged).
			Dur("duration", time.Since(start)).
			Msg("Retention sweep finished")
	}
}
