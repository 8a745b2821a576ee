package sourcing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Locker serialises runs per key. TryLock never blocks: ok is false when
// another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (lease *Lease, ok bool, err error)
}

// Lease is a held lock. Extend pushes the expiry out by ttl and reports false
// once the key has passed to another holder. Release is safe to call more
// than once.
type Lease struct {
	extend  func(ctx context.Context, ttl time.Duration) (bool, error)
	release func()
	once    sync.Once
}

func (l *Lease) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.extend(ctx, ttl)
}

func (l *Lease) Release() { l.once.Do(l.release) }

type hold struct {
	token  string
	expiry time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]hold
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]hold{}}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if h, ok := l.held[key]; ok && now.Before(h.expiry) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = hold{token: token, expiry: now.Add(ttl)}
	return &Lease{
		extend: func(_ context.Context, ttl time.Duration) (bool, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			if h, ok := l.held[key]; !ok || h.token != token {
				return false, nil
			}
			l.held[key] = hold{token: token, expiry: time.Now().Add(ttl)}
			return true, nil
		},
		release: func() {
			l.mu.Lock()
			if l.held[key].token == token {
				delete(l.held, key)
			}
			l.mu.Unlock()
		},
	}, true, nil
}

// RedisLocker holds keys with SET NX PX so that several API replicas share
// one lock per tenant.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: "lock:"}
}

// Both scripts act only while the key still carries our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	k := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{
		extend: func(ctx context.Context, ttl time.Duration) (bool, error) {
			n, err := extendScript.Run(ctx, l.rdb, []string{k}, token, ttl.Milliseconds()).Int()
			if err != nil {
				return false, err
			}
			return n == 1, nil
		},
		release: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
		},
	}, true, nil
}
