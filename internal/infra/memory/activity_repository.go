package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-service/internal/domain"
)

// ActivityLoader fetches the activity pool from a backing store.
type ActivityLoader interface {
	LoadActivities(ctx context.Context) ([]domain.Activity, error)
}

// ActivityRepository caches the activity pool with a TTL to avoid
// repeated store hits during question generation.
type ActivityRepository struct {
	loader ActivityLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.Activity
	expiresAt time.Time
}

func NewActivityRepository(loader ActivityLoader, ttl time.Duration) *ActivityRepository {
	return &ActivityRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ActivityRepository) GetActivities(ctx context.Context) ([]domain.Activity, error) {
	now := r.clock()

	r.mu.RLock()
	if r.cached != nil && r.expiresAt.After(now) {
		cached := r.cached
		r.mu.RUnlock()
		return copyActivities(cached), nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("activities", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.cached != nil && r.expiresAt.After(now) {
			cached := r.cached
			r.mu.RUnlock()
			return cached, nil
		}
		r.mu.RUnlock()

		pool, err := r.loader.LoadActivities(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = pool
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return copyActivities(result.([]domain.Activity)), nil
}

func (r *ActivityRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func copyActivities(pool []domain.Activity) []domain.Activity {
	out := make([]domain.Activity, len(pool))
	copy(out, pool)
	return out
}

// StaticActivityLoader is a loader backed by a fixed slice, for tests and
// demo runs without a database.
type StaticActivityLoader struct {
	pool []domain.Activity
}

func NewStaticActivityLoader(pool []domain.Activity) *StaticActivityLoader {
	return &StaticActivityLoader{pool: pool}
}

func (l *StaticActivityLoader) LoadActivities(_ context.Context) ([]domain.Activity, error) {
	if len(l.pool) == 0 {
		return nil, domain.ErrNotEnoughActivities
	}
	return copyActivities(l.pool), nil
}
