// Package lock provides the non-blocking, TTL-bounded single-flight
// lock the scheduler uses to dedupe check_all/check_job ticks across
// replicas: the Go analogue of celery_singleton's per-key task lock.
//
// The "dropped, not queued" semantics required here rule out
// golang.org/x/sync/singleflight.Group.Do's shared-result behavior — a
// second Do call for an in-flight key *waits* for and shares the
// first's result, which is not "dropped". Singleflight here instead
// composes a fast in-process compare-and-swap (so a second caller in
// the same replica never even reaches Redis) with a Redis SETNX guard
// (so a second caller on a different replica is also rejected), both
// non-blocking.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// releaseScript deletes the lock key only if it still holds the token
// this holder set, so a lock whose TTL already expired and was
// reacquired by someone else is never released out from under them.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Singleflight is a distributed, non-blocking, TTL-bounded lock keyed
// by an arbitrary string. It guarantees at most one concurrent runner
// per key process-wide (via an in-memory guard) and across replicas
// (via Redis SETNX).
type Singleflight struct {
	redis *redis.Client

	mu    sync.Mutex
	local map[string]struct{}
}

// NewSingleflight builds a Singleflight backed by a Redis client.
func NewSingleflight(redisClient *redis.Client) *Singleflight {
	return &Singleflight{
		redis: redisClient,
		local: make(map[string]struct{}),
	}
}

func (s *Singleflight) acquireLocal(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.local[key]; held {
		return false
	}
	s.local[key] = struct{}{}
	return true
}

func (s *Singleflight) releaseLocal(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, key)
}

// TryRun attempts to acquire the lock for key with the given TTL and,
// only on success, runs fn. It reports whether fn ran. A caller that
// cannot acquire the lock returns (false, nil) immediately — it never
// waits and never runs fn: a second invocation while one is already
// running is dropped, not queued.
func (s *Singleflight) TryRun(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if !s.acquireLocal(key) {
		return false, nil
	}
	defer s.releaseLocal(key)

	token := uuid.NewString()
	acquired, err := s.redis.SetNX(ctx, redisKey(key), token, ttl).Result()
	if err != nil {
		return false, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to acquire distributed lock")
	}
	if !acquired {
		return false, nil
	}
	defer s.release(ctx, key, token)

	return true, fn(ctx)
}

func (s *Singleflight) release(ctx context.Context, key, token string) {
	// Best-effort: if this fails the lock simply expires via TTL.
	s.redis.Eval(ctx, releaseScript, []string{redisKey(key)}, token)
}

func redisKey(key string) string {
	return "chainaudit:lock:" + key
}
