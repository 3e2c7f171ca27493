package search

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soundbay/backend/internal/cache"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/metrics"
	"go.uber.org/zap"
)

const hitCacheName = "search"

// hitCache keeps Elasticsearch hit ids for a short while. Only ids are
// cached; records are always reloaded so counters stay fresh.
type hitCache struct {
	store cache.Store
	ttl   time.Duration
}

func (c *hitCache) key(kind Kind, query string, limit, offset int) string {
	data, _ := json.Marshal([]interface{}{kind, query, limit, offset})
	return fmt.Sprintf("search:%s:%x", kind, md5.Sum(data))
}

func (c *hitCache) get(ctx context.Context, key string) (*Hits, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.Log.Debug("Search cache read failed", zap.Error(err))
		}
		metrics.Get().CacheMissesTotal.WithLabelValues(hitCacheName).Inc()
		return nil, false
	}
	var hits Hits
	if err := json.Unmarshal([]byte(raw), &hits); err != nil {
		metrics.Get().CacheMissesTotal.WithLabelValues(hitCacheName).Inc()
		return nil, false
	}
	metrics.Get().CacheHitsTotal.WithLabelValues(hitCacheName).Inc()
	return &hits, true
}

func (c *hitCache) put(ctx context.Context, key string, hits *Hits) {
	if c == nil || c.store == nil {
		return
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		logger.Log.Debug("Search cache write failed", zap.Error(err))
	}
}
