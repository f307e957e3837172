package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage implements the cross-job URL cache for Badger.
//
// Store failures degrade to cache miss; the crawl must never fail because the
// cache is unavailable. Last writer wins on key conflict.
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CacheStorage) Get(ctx context.Context, normalizedURL string) (*models.CacheEntry, error) {
	key := common.CacheKey(normalizedURL)

	var entry models.CacheEntry
	if err := s.db.Store().Get(key, &entry); err != nil {
		if err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed - treating as miss")
		}
		return nil, nil
	}

	// An expired read triggers deletion
	if entry.Expired(time.Now()) {
		if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete expired cache entry")
		}
		return nil, nil
	}

	return &entry, nil
}

func (s *CacheStorage) Put(ctx context.Context, entry *models.CacheEntry) error {
	if entry.URL == "" {
		return fmt.Errorf("cache entry URL is required")
	}
	key := common.CacheKey(entry.URL)
	entry.URLHash = common.HashURL(entry.URL).Primary
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}

	if err := s.db.Store().Upsert(key, entry); err != nil {
		// Non-fatal by contract
		s.logger.Warn().Err(err).Str("url", entry.URL).Msg("Cache write failed")
	}
	return nil
}

func (s *CacheStorage) Invalidate(ctx context.Context, normalizedURL string) error {
	key := common.CacheKey(normalizedURL)
	if err := s.db.Store().Delete(key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) Clear(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.CacheEntry{}, nil); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *CacheStorage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return 0, fmt.Errorf("failed to scan cache: %w", err)
	}

	purged := 0
	for i := range entries {
		if entries[i].Expired(now) {
			key := common.CacheKey(entries[i].URL)
			if err := s.db.Store().Delete(key, &models.CacheEntry{}); err == nil {
				purged++
			}
		}
	}
	return purged, nil
}
