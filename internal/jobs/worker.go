// -----------------------------------------------------------------------
// Last Modified: Tuesday, 25th November 2025 7:22:05 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/colligo/internal/crawler"
	"github.com/ternarybob/colligo/internal/models"
)

// claimIdleWait is how long a worker pauses when the queue has nothing to claim
const claimIdleWait = 100 * time.Millisecond

// workerLoop drains the queue until it is empty and idle, or the context is
// cancelled. Cancellation is cooperative: the check sits between queue claims
// so an in-flight item always finishes its fetch+extract cycle, bounded by
// the page timeout.
func (o *Orchestrator) workerLoop(ctx context.Context, workerIndex int) {
	workerStart := time.Now()
	itemsProcessed := 0

	o.logger.Debug().
		Str("job_id", o.job.ID).
		Int("worker_index", workerIndex).
		Msg("Worker started")

	defer func() {
		o.logger.Debug().
			Str("job_id", o.job.ID).
			Int("worker_index", workerIndex).
			Int("items_processed", itemsProcessed).
			Dur("duration", time.Since(workerStart)).
			Msg("Worker exiting")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := o.storage.QueueStorage().ClaimBatch(ctx, o.job.ID, 1)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", o.job.ID).Msg("Claim failed")
			return
		}

		if len(claimed) == 0 {
			if o.drained(ctx) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(claimIdleWait):
			}
			continue
		}

		o.markRunning()
		for _, item := range claimed {
			o.processItem(ctx, item)
			itemsProcessed++
		}
	}
}

// processItem runs the per-URL pipeline for one claimed queue item
func (o *Orchestrator) processItem(ctx context.Context, item *models.QueueItem) {
	queue := o.storage.QueueStorage()

	// Enqueue already normalised and filtered, but the options may have been
	// raced by a parallel enqueue; re-check before spending a fetch.
	if ok, reason := o.filter.Accept(item.NormalizedURL); !ok {
		o.skipItem(ctx, item, reason)
		return
	}

	o.publish(models.EventURLStarted, models.URLStartedPayload(item.NormalizedURL, item.Depth))

	// Cache read-through unless the client forced a refresh
	if !o.job.Options.ForceRefresh {
		if entry, _ := o.storage.CacheStorage().Get(ctx, item.NormalizedURL); entry != nil {
			o.processCacheHit(ctx, item, entry)
			return
		}
	}

	result, err := o.fetcher.Fetch(ctx, item.URL, crawler.FetchOptions{
		Timeout:       o.job.Options.PageTimeout(),
		MaxRetries:    o.job.Options.MaxRetries,
		RespectRobots: o.job.Options.RespectRobots,
	})
	if err != nil {
		o.failItem(ctx, item, err)
		return
	}

	o.publish(models.EventSentToProcessing, models.SentToProcessingPayload(item.NormalizedURL))

	extracted, err := o.extractor.Extract(result.Body, item.URL, crawler.ExtractOptions{
		IncludeCodeBlocks: o.job.Options.IncludeCodeBlocks,
		ExcludeNavigation: o.job.Options.ExcludeNavigation,
		IncludeAnchors:    o.job.Options.IncludeAnchors,
	})
	if err != nil {
		o.skipItem(ctx, item, "extraction failed: "+err.Error())
		return
	}

	// Cross-URL duplicate detection on the content fingerprint
	if !o.dedup.MarkContent(extracted.ContentHash) {
		o.savePageResult(item, extracted, models.PageStatusSkipped, "duplicate content", models.QualityScore{})
		o.skipItem(ctx, item, "duplicate content")
		return
	}

	quality := crawler.AssessQuality(extracted.Markdown)

	entry := &models.CacheEntry{
		URL:             item.NormalizedURL,
		Title:           extracted.Title,
		ContentMarkdown: extracted.Markdown,
		Links:           extracted.Links,
		QualityScore:    quality.Score,
		WordCount:       extracted.WordCount,
		ContentHash:     extracted.ContentHash,
		CachedAt:        time.Now(),
		TTL:             24 * time.Hour,
	}
	// Cache store failures are non-fatal
	o.storage.CacheStorage().Put(ctx, entry)

	o.savePageResult(item, extracted, models.PageStatusComplete, "", quality)

	filtered := quality.Score < o.job.Options.QualityThreshold
	if filtered {
		o.updateCounters(func(c *models.JobCounters) { c.Filtered++ })
	} else {
		o.updateCounters(func(c *models.JobCounters) { c.Processed++ })
	}

	// Enqueue discovered links while this item is still in flight so the
	// drain check never observes an empty queue mid-handoff
	o.discoverLinks(ctx, item, extracted.Links)

	if err := queue.Complete(ctx, item.ID); err != nil {
		o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to complete queue item")
	}

	o.publish(models.EventURLCrawled, models.URLCrawledPayload(
		item.NormalizedURL, true, len(extracted.Markdown), extracted.Title, &quality, false))
	o.emitProgress(ctx)
}

// processCacheHit replays a cached extraction without re-fetching; link
// discovery still recurses using the cached link set.
func (o *Orchestrator) processCacheHit(ctx context.Context, item *models.QueueItem, entry *models.CacheEntry) {
	if !o.dedup.MarkContent(entry.ContentHash) {
		o.skipItem(ctx, item, "duplicate content")
		return
	}

	quality := models.QualityScore{Score: entry.QualityScore}

	result := &models.PageResult{
		JobID:           item.JobID,
		URL:             item.NormalizedURL,
		Title:           entry.Title,
		ContentMarkdown: entry.ContentMarkdown,
		Depth:           item.Depth,
		Parent:          item.ParentURL,
		Status:          models.PageStatusComplete,
		Quality:         quality,
		WordCount:       entry.WordCount,
		ContentHash:     entry.ContentHash,
		Timestamp:       time.Now(),
	}
	if err := o.storage.JobStorage().SavePageResult(ctx, result); err != nil {
		o.logger.Warn().Err(err).Str("url", item.NormalizedURL).Msg("Failed to save cached page result")
	}

	if quality.Score < o.job.Options.QualityThreshold {
		o.updateCounters(func(c *models.JobCounters) { c.Filtered++ })
	} else {
		o.updateCounters(func(c *models.JobCounters) { c.Processed++ })
	}

	o.discoverLinks(ctx, item, entry.Links)

	if err := o.storage.QueueStorage().Complete(ctx, item.ID); err != nil {
		o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to complete queue item")
	}

	o.publish(models.EventURLCrawled, models.URLCrawledPayload(
		item.NormalizedURL, true, len(entry.ContentMarkdown), entry.Title, &quality, true))
	o.emitProgress(ctx)
}

// discoverLinks normalises, filters, and enqueues outbound links at depth+1,
// respecting the depth and page caps
func (o *Orchestrator) discoverLinks(ctx context.Context, item *models.QueueItem, links []string) {
	if len(links) == 0 {
		return
	}
	if item.Depth+1 > o.job.Options.MaxDepth {
		return
	}

	inserted := o.enqueueURLs(ctx, links, item.Depth+1, item.NormalizedURL)
	if len(inserted) == 0 {
		return
	}

	counters := o.counters()
	o.publish(models.EventURLsDiscovered, models.URLsDiscoveredPayload(
		item.NormalizedURL, inserted, counters.Discovered))
}

// failItem terminates an item on fetch error. The fetcher has already spent
// the retry budget with backoff, so transport errors are terminal here; the
// queue-level retryable path covers claims interrupted by cancellation.
func (o *Orchestrator) failItem(ctx context.Context, item *models.QueueItem, err error) {
	retryable := false
	if errors.Is(err, context.Canceled) {
		retryable = true
	}

	if qerr := o.storage.QueueStorage().Fail(ctx, item.ID, err.Error(), retryable, o.job.Options.MaxRetries); qerr != nil {
		o.logger.Warn().Err(qerr).Str("item_id", item.ID).Msg("Failed to mark queue item failed")
	}
	if retryable {
		return // the item went back to pending; no counters move yet
	}

	o.updateCounters(func(c *models.JobCounters) { c.Failed++ })
	o.publish(models.EventURLFailed, models.URLFailedPayload(item.NormalizedURL, err.Error()))

	o.logger.Debug().
		Str("job_id", o.job.ID).
		Str("url", item.NormalizedURL).
		Err(err).
		Msg("URL failed")

	// Seed unreachable after retries is fatal for the whole job
	if item.Depth == 0 {
		counters := o.counters()
		if counters.Processed == 0 && counters.Discovered == 1 {
			o.noteSeedFailure(err.Error())
		}
	}

	o.emitProgress(ctx)
}

// skipItem marks an item skipped (invalid URL, unparseable content, or
// duplicate) without failing the job
func (o *Orchestrator) skipItem(ctx context.Context, item *models.QueueItem, reason string) {
	if err := o.storage.QueueStorage().Complete(ctx, item.ID); err != nil {
		o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Failed to complete skipped item")
	}

	o.updateCounters(func(c *models.JobCounters) { c.Skipped++ })
	o.publish(models.EventURLSkipped, models.URLSkippedPayload(item.NormalizedURL, reason))

	o.logger.Debug().
		Str("job_id", o.job.ID).
		Str("url", item.NormalizedURL).
		Str("reason", reason).
		Msg("URL skipped")

	o.emitProgress(ctx)
}

// savePageResult persists the per-URL output row
func (o *Orchestrator) savePageResult(item *models.QueueItem, extracted *crawler.ExtractResult, status models.PageStatus, errMsg string, quality models.QualityScore) {
	result := &models.PageResult{
		JobID:           item.JobID,
		URL:             item.NormalizedURL,
		Title:           extracted.Title,
		Depth:           item.Depth,
		Parent:          item.ParentURL,
		Hierarchy:       extracted.Hierarchy,
		Anchor:          extracted.Anchor,
		Status:          status,
		Error:           errMsg,
		Quality:         quality,
		WordCount:       extracted.WordCount,
		ContentHash:     extracted.ContentHash,
		Timestamp:       time.Now(),
	}
	if status == models.PageStatusComplete {
		result.ContentMarkdown = extracted.Markdown
	}

	if err := o.storage.JobStorage().SavePageResult(context.Background(), result); err != nil {
		o.logger.Warn().Err(err).Str("url", item.NormalizedURL).Msg("Failed to save page result")
	}
}

// emitProgress publishes the counters snapshot
func (o *Orchestrator) emitProgress(ctx context.Context) {
	pending, _, err := o.storage.QueueStorage().Counts(ctx, o.job.ID)
	if err != nil {
		return
	}
	o.publish(models.EventProgress, models.ProgressPayload(o.counters(), pending))
}
