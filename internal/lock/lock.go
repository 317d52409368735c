package redlock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes ledger read-modify-write cycles for a single owner key.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

const (
	lockTTL    = 30 * time.Second
	lockWait   = 5 * time.Second
	maxSleepMs = 100
)

// Registry hands out lockers per owner key. With a redis client the lock is
// held in redis so multiple processes against the same remote store exclude
// each other; without one it degrades to an in-process mutex per key.
type Registry struct {
	client redis.UniversalClient

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

func NewRegistry(client redis.UniversalClient) *Registry {
	return &Registry{client: client, owners: make(map[string]*sync.Mutex)}
}

func (r *Registry) ForOwner(key string) Locker {
	if r.client != nil {
		return &redisLocker{client: r.client, key: "lock:" + key, value: uuid.NewString()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.owners[key]
	if !ok {
		m = &sync.Mutex{}
		r.owners[key] = m
	}
	return &processLocker{mu: m}
}

type processLocker struct {
	mu *sync.Mutex
}

func (l *processLocker) Lock(_ context.Context) error {
	l.mu.Lock()
	return nil
}

func (l *processLocker) Unlock(_ context.Context) error {
	l.mu.Unlock()
	return nil
}

// redisLocker holds the lock in redis via SetNX; value ensures only the lock
// holder can unlock.
type redisLocker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func (l *redisLocker) Lock(ctx context.Context) error {
	deadline := time.Now().Add(lockWait)
	for time.Now().Before(deadline) {
		success, err := l.client.SetNX(ctx, l.key, l.value, lockTTL).Result()
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		time.Sleep(time.Duration(rand.Intn(maxSleepMs)) * time.Millisecond)
	}
	return fmt.Errorf("failed to acquire lock for key %s within the wait timeout", l.key)
}

func (l *redisLocker) Unlock(ctx context.Context) error {
	script := "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}
