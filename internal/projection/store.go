package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when the key is missing or expired.
var ErrNotFound = errors.New("projection: key not found")

// Store is the interface for projection persistence (Redis-backed in production).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ErrVersionMismatch is returned by SetVersioned when the version key no longer
// holds the expected counter.
var ErrVersionMismatch = errors.New("projection: version mismatch")

// VersionedStore can write a group of keys guarded by a counter key. Readers
// load the counter first, then the keys; a writer presents the counter it read.
type VersionedStore interface {
	Store
	Version(ctx context.Context, key string) (int64, error)
	SetVersioned(ctx context.Context, versionKey string, expected int64, values map[string][]byte) (int64, error)
}

// InMemoryStore is a simple in-memory projection store for development/testing.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory projection store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]entry), now: time.Now}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s expired", ErrNotFound, key)
	}
	return append([]byte(nil), e.value...), nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = entry{value: append([]byte(nil), value...), expiresAt: exp}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Version returns the counter stored at key, or 0 when it was never written.
func (s *InMemoryStore) Version(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionLocked(key)
}

// SetVersioned writes values and advances the counter at versionKey, provided
// it still equals expected.
func (s *InMemoryStore) SetVersioned(_ context.Context, versionKey string, expected int64, values map[string][]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.versionLocked(versionKey)
	if err != nil {
		return 0, err
	}
	if cur != expected {
		return cur, fmt.Errorf("%w: %s is %d, want %d", ErrVersionMismatch, versionKey, cur, expected)
	}
	for k, v := range values {
		s.data[k] = entry{value: append([]byte(nil), v...)}
	}
	next := cur + 1
	s.data[versionKey] = entry{value: []byte(strconv.FormatInt(next, 10))}
	return next, nil
}

func (s *InMemoryStore) versionLocked(key string) (int64, error) {
	e, ok := s.data[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version %s: %w", key, err)
	}
	return v, nil
}

// SetJSON is a convenience helper to serialize and store a value.
func SetJSON(ctx context.Context, store Store, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal projection: %w", err)
	}
	return store.Set(ctx, key, data, ttl)
}

// GetJSON is a convenience helper to retrieve and deserialize a value.
func GetJSON(ctx context.Context, store Store, key string, dest interface{}) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
