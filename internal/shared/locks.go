package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SaveLockKey builds the redis key guarding snapshot saves for a tenant.
func SaveLockKey(tenantID int64) string {
	return fmt.Sprintf("ledger:tenant:%d:save", tenantID)
}

// releaseScript deletes the lease only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// TenantLocker serialises critical sections per tenant. Within a process a
// per-tenant mutex queues callers; across processes a caller polls the redis
// lease for up to the configured wait and then fails with ErrLockHeld.
type TenantLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration

	mu    sync.Mutex
	local map[int64]*sync.Mutex
}

// NewTenantLocker constructs a locker. A nil client disables the redis lease.
func NewTenantLocker(client *redis.Client, ttl time.Duration) *TenantLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TenantLocker{client: client, ttl: ttl, poll: 25 * time.Millisecond, local: make(map[int64]*sync.Mutex)}
}

// WithWait sets how long WithLock keeps retrying a lease held elsewhere.
func (l *TenantLocker) WithWait(wait time.Duration) *TenantLocker {
	if wait > 0 {
		l.wait = wait
	}
	return l
}

// WithLock runs fn while holding the tenant's save lock.
func (l *TenantLocker) WithLock(ctx context.Context, tenantID int64, fn func(context.Context) error) error {
	m := l.mutexFor(tenantID)
	m.Lock()
	defer m.Unlock()

	if l.client == nil {
		return fn(ctx)
	}
	key := SaveLockKey(tenantID)
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// release on a fresh context so a cancelled request still frees the lease
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l *TenantLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: acquire lock: %v", ErrUpstream, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(l.poll).Before(deadline) {
			return ErrLockHeld
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *TenantLocker) mutexFor(tenantID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.local[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.local[tenantID] = m
	}
	return m
}
