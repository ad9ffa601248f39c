package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/domain"
)

const activityPoolKey = "trivia:activities:pool"

// ActivityLoader fetches the activity pool from a backing store.
type ActivityLoader interface {
	LoadActivities(ctx context.Context) ([]domain.Activity, error)
}

// ActivityRepository caches the activity pool in Redis as a JSON blob and
// falls back to the loader on a cache miss. Cross-instance deployments
// share the cached pool.
type ActivityRepository struct {
	client *redis.Client
	loader ActivityLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewActivityRepository(client *redis.Client, loader ActivityLoader, ttl time.Duration) *ActivityRepository {
	return &ActivityRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ActivityRepository) GetActivities(ctx context.Context) ([]domain.Activity, error) {
	if pool, ok := r.fromCache(ctx); ok {
		return pool, nil
	}

	result, err, _ := r.sf.Do(activityPoolKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := r.fromCache(ctx); ok {
			return pool, nil
		}

		pool, err := r.loader.LoadActivities(ctx)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(pool); err == nil {
			// best-effort cache fill
			_ = r.client.Set(ctx, activityPoolKey, data, r.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Activity), nil
}

func (r *ActivityRepository) fromCache(ctx context.Context) ([]domain.Activity, bool) {
	raw, err := r.client.Get(ctx, activityPoolKey).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var pool []domain.Activity
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, false
	}
	return pool, len(pool) > 0
}

func (r *ActivityRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
