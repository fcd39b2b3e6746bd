package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants a short per-key lease. Customer mapping creation is the one
// operation that needs mutual exclusion beyond what conditional writes give
// us, because it spans an external call plus a local insert.
type Locker interface {
	// Acquire returns ok=false when another holder owns the lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type redisLocker struct {
	client *redis.Client
}

// NewRedisLocker builds a Locker on top of the shared cache client.
func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Only delete our own lease; if the TTL already expired and someone
		// else holds the key, leave it alone.
		val, err := l.client.Get(context.Background(), key).Result()
		if err == nil && val == token {
			_ = l.client.Del(context.Background(), key).Err()
		}
	}
	return release, true, nil
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker is a process-local Locker used in tests and single-node
// setups without Redis.
func NewMemoryLocker() Locker {
	return &memoryLocker{held: make(map[string]struct{})}
}

func (l *memoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, true, nil
}
