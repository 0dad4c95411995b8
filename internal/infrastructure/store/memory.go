package store

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process AtomicStore fallback. Atomicity holds only
// within one process; cross-instance safety is traded for availability.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	sequences map[string]uint64 // next value per counter key
	now       func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memoryEntry),
		sequences: make(map[string]uint64),
		now:       time.Now,
	}
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok && !s.expired(existing) {
		return false, nil
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.expired(entry) || !bytes.Equal(entry.value, expected) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) ReserveSequence(_ context.Context, key string, floor uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.sequences[key]
	if floor > next {
		next = floor
	}
	s.sequences[key] = next + 1
	return next, nil
}

func (s *MemoryStore) ReleaseSequence(_ context.Context, key string, value uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.sequences[key]
	if !ok || next != value+1 {
		return false, nil
	}
	s.sequences[key] = value
	return true, nil
}

func (s *MemoryStore) SyncSequence(_ context.Context, key string, floor uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.sequences[key]
	if floor > next {
		next = floor
		s.sequences[key] = next
	}
	return next, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}
