// -----------------------------------------------------------------------
// Last Modified: Tuesday, 25th November 2025 7:22:05 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/crawler"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// tickInterval is how often completion is recomputed between worker events
const tickInterval = 200 * time.Millisecond

// finalSeparator joins per-page Markdown in the consolidated corpus
const finalSeparator = "\n\n---\n\n"

// Orchestrator drives one crawl job: it seeds the queue, supervises the
// worker pool, enforces the wall-clock deadline, detects completion, and
// finalises the output. Multiple orchestrators run in parallel across jobs.
type Orchestrator struct {
	job       *models.CrawlJob
	storage   interfaces.StorageManager
	stream    interfaces.EventStream
	fetcher   *crawler.Fetcher
	extractor *crawler.Extractor
	sitemap   *crawler.SitemapDiscoverer
	filter    *common.URLFilter
	dedup     *DedupSet
	logger    arbor.ILogger

	// allowPrivateSeeds relaxes the SSRF guard in development environments
	allowPrivateSeeds bool

	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	countersMu sync.Mutex
	running    sync.Once

	// cancelled is set on explicit client request so the terminal state is
	// cancelled rather than timeout when the context dies
	cancelledMu sync.Mutex
	cancelled   bool

	// seedFailure records a permanent fetch failure of the sole seed URL,
	// which is fatal for the whole job
	seedFailureMu sync.Mutex
	seedFailure   string
}

// NewOrchestrator creates the supervisor for one job
func NewOrchestrator(
	job *models.CrawlJob,
	storage interfaces.StorageManager,
	stream interfaces.EventStream,
	fetcher *crawler.Fetcher,
	extractor *crawler.Extractor,
	sitemap *crawler.SitemapDiscoverer,
	logger arbor.ILogger,
) (*Orchestrator, error) {
	filter, err := common.NewURLFilter(job.SeedURL, job.Options.FollowExternalLinks)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		job:       job,
		storage:   storage,
		stream:    stream,
		fetcher:   fetcher,
		extractor: extractor,
		sitemap:   sitemap,
		filter:    filter,
		dedup:     NewDedupSet(),
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Done is closed when the job reaches a terminal state
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Cancel requests cooperative shutdown; workers finish their current item
func (o *Orchestrator) Cancel() {
	o.cancelledMu.Lock()
	o.cancelled = true
	o.cancelledMu.Unlock()
	o.cancelOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
	})
}

func (o *Orchestrator) noteSeedFailure(reason string) {
	o.seedFailureMu.Lock()
	o.seedFailure = reason
	o.seedFailureMu.Unlock()
}

func (o *Orchestrator) seedFailureReason() string {
	o.seedFailureMu.Lock()
	defer o.seedFailureMu.Unlock()
	return o.seedFailure
}

func (o *Orchestrator) wasCancelled() bool {
	o.cancelledMu.Lock()
	defer o.cancelledMu.Unlock()
	return o.cancelled
}

// Run executes the job to a terminal state. It blocks until done.
func (o *Orchestrator) Run(parent context.Context) {
	defer close(o.done)

	deadline := o.job.Options.JobDeadline()
	ctx, cancel := context.WithTimeout(parent, deadline)
	o.cancel = cancel
	defer cancel()

	if o.wasCancelled() {
		// Cancel arrived before the run started
		cancel()
	}

	start := time.Now()

	o.publish(models.EventStreamConnected, models.StreamConnectedPayload(o.job.ID, o.job.SeedURL))

	if err := common.ValidateSeedURL(o.job.SeedURL, o.allowPrivateSeeds); err != nil {
		o.fail(fmt.Sprintf("seed URL rejected: %v", err))
		return
	}

	if err := o.seed(ctx); err != nil {
		o.fail(fmt.Sprintf("failed to seed queue: %v", err))
		return
	}

	// Worker pool
	workers := o.job.Options.MaxConcurrentRequests
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerIndex int) {
			defer wg.Done()
			o.workerLoop(ctx, workerIndex)
		}(i)
	}

	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	lastTimeUpdate := time.Now()

	for {
		select {
		case <-ctx.Done():
			// Workers exit after finishing their current item
			<-workersDone
			if o.wasCancelled() || parent.Err() != nil {
				o.terminate(models.JobStatusCancelled, "cancelled by client")
			} else {
				o.timeout(start)
			}
			return

		case <-workersDone:
			if reason := o.seedFailureReason(); reason != "" && o.counters().Processed == 0 {
				o.fail("seed URL unreachable: " + reason)
			} else {
				o.finalise()
			}
			return

		case <-ticker.C:
			if time.Since(lastTimeUpdate) >= time.Second {
				lastTimeUpdate = time.Now()
				o.emitTimeUpdate(start)
			}
		}
	}
}

// seed validates and enqueues the initial URL set: sitemap URLs capped at
// max_pages when discovery succeeds, else the single seed URL.
func (o *Orchestrator) seed(ctx context.Context) error {
	var seeds []string

	if o.job.Options.UseSitemap {
		seeds = o.sitemap.Discover(ctx, o.job.SeedURL, o.job.Options.MaxPages)
	}
	if len(seeds) == 0 {
		seeds = []string{o.job.SeedURL}
	}

	inserted := o.enqueueURLs(ctx, seeds, 0, "")
	if len(inserted) == 0 {
		return fmt.Errorf("no crawlable URLs from seed %s", o.job.SeedURL)
	}

	o.logger.Info().
		Str("job_id", o.job.ID).
		Int("seed_count", len(inserted)).
		Msg("Queue seeded")

	return nil
}

// enqueueURLs normalises, filters, and deduplicates candidate URLs, then
// inserts them respecting the max_pages discovery cap. Returns the normalised
// URLs actually inserted; counters are updated atomically.
func (o *Orchestrator) enqueueURLs(ctx context.Context, urls []string, depth int, parentURL string) []string {
	var items []*models.QueueItem

	o.countersMu.Lock()
	budget := o.job.Options.MaxPages - o.job.Counters.Discovered
	o.countersMu.Unlock()
	if budget <= 0 {
		return nil
	}

	for _, raw := range urls {
		if len(items) >= budget {
			break
		}

		normalized := common.NormalizeURL(raw, nil)
		if normalized == "" {
			continue
		}
		if ok, _ := o.filter.Accept(normalized); !ok {
			continue
		}

		hashes := common.HashURL(normalized)
		if !o.dedup.MarkVisited(hashes) {
			continue
		}

		items = append(items, &models.QueueItem{
			ID:              common.NewItemID(),
			JobID:           o.job.ID,
			URL:             raw,
			NormalizedURL:   normalized,
			URLHash:         hashes.Primary,
			SchemeAwareHash: hashes.SchemeAware,
			Depth:           depth,
			ParentURL:       parentURL,
		})
	}

	if len(items) == 0 {
		return nil
	}

	inserted, err := o.storage.QueueStorage().Enqueue(ctx, o.job.ID, items)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", o.job.ID).Msg("Enqueue failed")
		return nil
	}

	urlsInserted := make([]string, 0, inserted)
	for _, item := range items[:inserted] {
		urlsInserted = append(urlsInserted, item.NormalizedURL)
	}

	if inserted > 0 {
		o.updateCounters(func(c *models.JobCounters) {
			c.Discovered += inserted
			c.Queued += inserted
		})
	}

	return urlsInserted
}

// markRunning transitions pending -> running on the first worker claim
func (o *Orchestrator) markRunning() {
	o.running.Do(func() {
		o.countersMu.Lock()
		defer o.countersMu.Unlock()
		if o.job.CanTransitionTo(models.JobStatusRunning) {
			o.job.Status = models.JobStatusRunning
			o.saveJobLocked()
		}
	})
}

// updateCounters mutates the job counters under the job lock and persists
func (o *Orchestrator) updateCounters(fn func(*models.JobCounters)) {
	o.countersMu.Lock()
	defer o.countersMu.Unlock()
	fn(&o.job.Counters)
	o.saveJobLocked()
}

// saveJobLocked persists the job; callers hold countersMu
func (o *Orchestrator) saveJobLocked() {
	if err := o.storage.JobStorage().UpdateJob(context.Background(), o.job); err != nil {
		o.logger.Warn().Err(err).Str("job_id", o.job.ID).Msg("Failed to persist job")
	}
}

// counters returns a copy of the current counters
func (o *Orchestrator) counters() models.JobCounters {
	o.countersMu.Lock()
	defer o.countersMu.Unlock()
	return o.job.Counters
}

// drained reports whether the queue is simultaneously empty and idle,
// observed atomically through the queue storage lock.
func (o *Orchestrator) drained(ctx context.Context) bool {
	pending, inFlight, err := o.storage.QueueStorage().Counts(ctx, o.job.ID)
	if err != nil {
		return false
	}
	return pending == 0 && inFlight == 0
}

// finalise concatenates the PageResults meeting the quality threshold,
// stores the consolidated Markdown, and emits the terminal completed event.
func (o *Orchestrator) finalise() {
	ctx := context.Background()

	results, err := o.storage.JobStorage().ListPageResults(ctx, o.job.ID)
	if err != nil {
		o.fail(fmt.Sprintf("failed to load page results: %v", err))
		return
	}

	var sections []string
	totalWords := 0
	for _, r := range results {
		if r.Status != models.PageStatusComplete {
			continue
		}
		if r.Quality.Score < o.job.Options.QualityThreshold {
			continue
		}
		sections = append(sections, r.ContentMarkdown)
		totalWords += r.WordCount
	}

	o.countersMu.Lock()
	if len(sections) > 0 {
		o.job.FinalMarkdown = joinSections(sections)
		o.job.TotalWords = totalWords
	}
	counters := o.job.Counters
	o.setTerminalLocked(models.JobStatusCompleted, "")
	o.countersMu.Unlock()

	o.publish(models.EventJobCompleted, models.JobCompletedPayload(o.job.ID, counters))

	o.logger.Info().
		Str("job_id", o.job.ID).
		Int("pages", len(sections)).
		Int("total_words", totalWords).
		Msg("Job completed")
}

func joinSections(sections []string) string {
	out := ""
	for i, s := range sections {
		if i > 0 {
			out += finalSeparator
		}
		out += s
	}
	return out
}

// timeout marks the job timed out and emits the terminal event
func (o *Orchestrator) timeout(start time.Time) {
	o.countersMu.Lock()
	counters := o.job.Counters
	o.setTerminalLocked(models.JobStatusTimeout, "wall-clock deadline exceeded")
	o.countersMu.Unlock()

	message := fmt.Sprintf("Crawl stopped after %s: %d pages processed", time.Since(start).Round(time.Second), counters.Processed)
	o.publish(models.EventJobTimeout, models.JobTimeoutPayload(o.job.ID, counters, message))

	o.logger.Warn().
		Str("job_id", o.job.ID).
		Int("processed", counters.Processed).
		Msg("Job deadline exceeded")
}

// fail marks the job failed with a diagnostic and emits the terminal event
func (o *Orchestrator) fail(reason string) {
	o.countersMu.Lock()
	counters := o.job.Counters
	o.setTerminalLocked(models.JobStatusFailed, reason)
	o.countersMu.Unlock()

	o.publish(models.EventJobFailed, models.JobFailedPayload(o.job.ID, reason, counters))

	o.logger.Error().
		Str("job_id", o.job.ID).
		Str("error", reason).
		Msg("Job failed")
}

// terminate marks an externally-triggered terminal state (cancellation)
func (o *Orchestrator) terminate(status models.JobStatus, reason string) {
	o.countersMu.Lock()
	counters := o.job.Counters
	o.setTerminalLocked(status, reason)
	o.countersMu.Unlock()

	// Cancellation still closes the stream with a terminal event
	o.publish(models.EventJobFailed, models.JobFailedPayload(o.job.ID, reason, counters))

	o.logger.Info().
		Str("job_id", o.job.ID).
		Str("status", string(status)).
		Msg("Job terminated")
}

// setTerminalLocked transitions to the terminal status; callers hold countersMu.
// Once terminal, no further mutations are permitted on the job.
func (o *Orchestrator) setTerminalLocked(status models.JobStatus, errMsg string) {
	if o.job.Status.IsTerminal() {
		return
	}
	o.job.Status = status
	if errMsg != "" && status != models.JobStatusCompleted {
		o.job.Error = errMsg
	}
	now := time.Now()
	o.job.CompletedAt = &now
	o.saveJobLocked()
}

// emitTimeUpdate publishes the once-per-second elapsed time event
func (o *Orchestrator) emitTimeUpdate(start time.Time) {
	pending, inFlight, err := o.storage.QueueStorage().Counts(context.Background(), o.job.ID)
	if err != nil {
		return
	}
	counters := o.counters()
	o.publish(models.EventTimeUpdate, models.TimeUpdatePayload(time.Since(start), counters, pending+inFlight, pending))
}

// publish emits a progress event; publish failures are non-fatal
func (o *Orchestrator) publish(eventType models.EventType, payload map[string]interface{}) {
	if _, err := o.stream.Publish(context.Background(), o.job.ID, eventType, payload); err != nil {
		o.logger.Warn().
			Err(err).
			Str("job_id", o.job.ID).
			Str("event_type", string(eventType)).
			Msg("Failed to publish progress event")
	}
}
