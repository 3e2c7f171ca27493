package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache: miss")

// Store is the subset of Redis the service relies on: play de-duplication,
// the trending cache, OAuth state, and distributed rate limiting.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// GetDel atomically reads and removes key
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	// IncrWithTTL increments key and sets ttl when the key is new
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	PlayDedupPrefix  = "play:"
	TrendingKey      = "feed:trending"
	OAuthStatePrefix = "oauth_state:"
	RateLimitPrefix  = "ratelimit:"
)

// PlayKey identifies one listener's recent play of a track
func PlayKey(trackID, listener string) string {
	return PlayDedupPrefix + trackID + ":" + listener
}
