package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-psd2-sca/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const latestActivityCacheKeyPrefix = "psd2-sca::activity_latest::v1"

// ActivityRepository is the read and write surface the cached decorator
// wraps. *ActivityStore satisfies it.
type ActivityRepository interface {
	core.ActivityRecorder
	core.ActivityReader
}

// CachedActivityStore caches the latest entry per operation. Writes go to
// the base store first, then evict the operation's key.
type CachedActivityStore struct {
	base  ActivityRepository
	cache repositorycache.CacheService
}

func NewCachedActivityStore(base ActivityRepository, cacheService repositorycache.CacheService) (*CachedActivityStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base activity store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: activity cache service is required")
	}
	return &CachedActivityStore{base: base, cache: cacheService}, nil
}

// LatestActivityCacheKey is psd2-sca::activity_latest::v1::<operation_id>
// with the id URL-path escaped.
func LatestActivityCacheKey(operationID string) (string, error) {
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return "", fmt.Errorf("sqlstore: operation id is required")
	}
	return latestActivityCacheKeyPrefix + "::" + url.PathEscape(operationID), nil
}

func (s *CachedActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	if err := s.base.Record(ctx, entry); err != nil {
		return err
	}
	cacheKey, err := LatestActivityCacheKey(entry.OperationID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.base == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedActivityStore) Latest(ctx context.Context, operationID string) (core.ActivityEntry, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ActivityEntry{}, fmt.Errorf("sqlstore: cached activity store is not configured")
	}
	operationID = strings.TrimSpace(operationID)
	cacheKey, err := LatestActivityCacheKey(operationID)
	if err != nil {
		return core.ActivityEntry{}, err
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ActivityEntry, error) {
		fetched, fetchErr := s.base.Latest(ctx, operationID)
		if fetchErr != nil {
			return core.ActivityEntry{}, fetchErr
		}
		return cloneActivityEntry(fetched), nil
	})
	if err != nil {
		return core.ActivityEntry{}, err
	}
	return cloneActivityEntry(entry), nil
}

func cloneActivityEntry(entry core.ActivityEntry) core.ActivityEntry {
	cloned := entry
	cloned.Metadata = copyAnyMap(entry.Metadata)
	return cloned
}

var _ ActivityRepository = (*CachedActivityStore)(nil)
