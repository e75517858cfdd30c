// Package store provides key-value stores for persisted OTP state: in-memory, Redis and Postgres.
package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process store. Expired entries are dropped lazily on Get and by Purge.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), nowF: time.Now}
}

// Set stores value under key for ttl. A non-positive ttl keeps the entry until deleted.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = s.nowF().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: value, expiresAt: exp}
	return nil
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur == e {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes keys. Missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// Purge drops expired entries and returns how many were removed.
func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
