package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/domain"
)

// CandidateCacheTTL is short because reputation aggregates can change after
// every completed ride.
const CandidateCacheTTL = 30 * time.Second

const candidateCachePrefix = "cache:candidate:"

// CandidateCache keeps recently fetched driver candidates in Redis so the
// match orchestrator can skip the reputation join on hot paths.
type CandidateCache struct {
	client *redis.Client
}

// NewCandidateCache creates a new CandidateCache.
func NewCandidateCache(client *redis.Client) *CandidateCache {
	return &CandidateCache{client: client}
}

// Get retrieves a cached candidate. A cache miss returns (nil, nil).
func (c *CandidateCache) Get(ctx context.Context, driverID string) (*domain.DriverCandidate, error) {
	data, err := c.client.Get(ctx, candidateCachePrefix+driverID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var candidate domain.DriverCandidate
	if err := json.Unmarshal(data, &candidate); err != nil {
		return nil, err
	}
	return &candidate, nil
}

// Set stores a candidate.
func (c *CandidateCache) Set(ctx context.Context, candidate *domain.DriverCandidate) error {
	data, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, candidateCachePrefix+candidate.DriverID, data, CandidateCacheTTL).Err()
}

// Invalidate drops a candidate from the cache.
func (c *CandidateCache) Invalidate(ctx context.Context, driverID string) error {
	return c.client.Del(ctx, candidateCachePrefix+driverID).Err()
}
