package shared

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides mutual exclusion per key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ProductLockKey builds the lock key guarding stock of a product.
func ProductLockKey(productID string) string {
	return fmt.Sprintf("inventory:product:%s:lock", productID)
}

// FulfillmentLockKey builds the lock key guarding a fulfillment.
func FulfillmentLockKey(fulfillmentID string) string {
	return fmt.Sprintf("fulfillment:%s:lock", fulfillmentID)
}

// PickLineLockKey builds the lock key guarding a single pick-list line.
func PickLineLockKey(pickListID, productID string) string {
	return fmt.Sprintf("picklist:%s:line:%s:lock", pickListID, productID)
}

// AlertLockKey builds the lock key guarding alert state of a product.
func AlertLockKey(productID string) string {
	return fmt.Sprintf("alerts:product:%s:lock", productID)
}

// ErrNoTxScope is returned when Lock is called outside WithinTx.
var ErrNoTxScope = errors.New("shared: lock requires an open transaction scope")

// Lock acquires keys in sorted order and holds them until the outermost
// transaction in ctx finishes. Keys already held by the same transaction
// are skipped, so nested components may lock the same entity again.
func Lock(ctx context.Context, locker Locker, keys ...string) error {
	s := scopeFrom(ctx)
	if s == nil {
		return ErrNoTxScope
	}
	if locker == nil {
		return nil
	}
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	s.mu.Lock()
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, held := s.held[key]; held {
			continue
		}
		sorted = append(sorted, key)
	}
	s.mu.Unlock()
	sort.Strings(sorted)

	for _, key := range sorted {
		unlock, err := locker.Lock(ctx, key)
		if err != nil {
			return fmt.Errorf("shared: lock %s: %w", key, err)
		}
		s.mu.Lock()
		if s.held == nil {
			s.held = make(map[string]struct{})
		}
		s.held[key] = struct{}{}
		s.releases = append(s.releases, unlock)
		s.mu.Unlock()
	}
	return nil
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*keySlot)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = &keySlot{ch: make(chan struct{}, 1)}
		m.slots[key] = slot
	}
	slot.refs++
	m.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, slot)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			m.drop(key, slot)
		})
	}, nil
}

func (m *KeyedMutex) drop(key string, slot *keySlot) {
	m.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.slots, key)
	}
	m.mu.Unlock()
}

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared between processes through Redis.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker constructs a RedisLocker. ttl bounds how long a crashed
// holder can block others.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls SET NX until acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	wait := l.retry
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < 500*time.Millisecond {
			wait *= 2
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}
