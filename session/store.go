package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Load when nothing is persisted under the key.
var ErrNoSnapshot = errors.New("no session snapshot")

// SnapshotStore persists the durable session subset. Implementations must be
// safe for concurrent use.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	// Clear removes the snapshot and any legacy keys from older clients.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process SnapshotStore. It survives nothing but is the
// default when no Redis client is configured, and keeps tests hermetic.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements SnapshotStore.
func (s *MemoryStore) Load(context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, ErrNoSnapshot
	}
	out := *s.snap
	if s.snap.User != nil {
		u := *s.snap.User
		out.User = &u
	}
	return &out, nil
}

// Save implements SnapshotStore.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	if snap.User != nil {
		u := *snap.User
		cp.User = &u
	}
	s.snap = &cp
	return nil
}

// Clear implements SnapshotStore.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

// RedisStore persists snapshots in Redis so every process sharing the key
// shares one logical session. TTL bounds how long a stale hint can outlive
// its cookies; zero disables expiry.
type RedisStore struct {
	rdb        redis.UniversalClient
	key        string
	legacyKeys []string
	ttl        time.Duration
}

// NewRedisStore builds a RedisStore under key. legacyKeys name alternate
// keys written by older clients; Clear removes them too so stale partial
// state cannot resurrect a session.
func NewRedisStore(rdb redis.UniversalClient, key string, legacyKeys []string, ttl time.Duration) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("snapshot key is required")
	}
	return &RedisStore{
		rdb:        rdb,
		key:        key,
		legacyKeys: append([]string(nil), legacyKeys...),
		ttl:        ttl,
	}, nil
}

// Load implements SnapshotStore.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt snapshot is worth less than no snapshot.
		_ = s.rdb.Del(ctx, s.key).Err()
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

// Save implements SnapshotStore.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot save: %w", err)
	}
	return nil
}

// Clear implements SnapshotStore.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys := append([]string{s.key}, s.legacyKeys...)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("snapshot clear: %w", err)
	}
	return nil
}
