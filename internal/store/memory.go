package store

import (
	"context"
	"sync"
	"time"
)

type memRecord struct {
	entry      CacheEntry
	expiration time.Time
}

// MemoryStore implements Store with a mutex-protected map. It is used in
// tests and for local development without Redis. Expired records are
// dropped lazily on read and by a background sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memRecord
	options map[string]OptionSet
	stopCh  chan struct{}
	once    sync.Once

	// clock is swappable in tests to exercise expiry.
	clock func() time.Time
}

// NewMemoryStore creates an in-memory store and starts its expiry sweep.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memRecord),
		options: make(map[string]OptionSet),
		stopCh:  make(chan struct{}),
		clock:   time.Now,
	}
	go s.sweep()
	return s
}

// GetEntry returns the entry for the key, or ErrNotFound.
func (s *MemoryStore) GetEntry(ctx context.Context, key EntryKey) (*CacheEntry, error) {
	s.mu.RLock()
	rec, ok := s.entries[entryKey(key)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.clock().After(rec.expiration) {
		s.mu.Lock()
		delete(s.entries, entryKey(key))
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	entry := rec.entry
	return &entry, nil
}

// PutEntry upserts the entry and resets its TTL.
func (s *MemoryStore) PutEntry(ctx context.Context, entry *CacheEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entryKey(entry.Key())] = &memRecord{
		entry:      *entry,
		expiration: s.clock().Add(ttl),
	}
	return nil
}

// IncrementHit bumps the hit counter without touching the expiration.
func (s *MemoryStore) IncrementHit(ctx context.Context, key EntryKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[entryKey(key)]
	if !ok || s.clock().After(rec.expiration) {
		return 0, ErrNotFound
	}
	rec.entry.HitCount++
	return rec.entry.HitCount, nil
}

// PurgeEntries deletes all trend entries.
func (s *MemoryStore) PurgeEntries(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.entries))
	s.entries = make(map[string]*memRecord)
	return n, nil
}

// GetOptionSet returns the named option set, or ErrNotFound.
func (s *MemoryStore) GetOptionSet(ctx context.Context, name string) (*OptionSet, error) {
	s.mu.RLock()
	set, ok := s.options[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.clock().After(set.ExpiresAt) {
		s.mu.Lock()
		delete(s.options, name)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return &set, nil
}

// PutOptionSet replaces the named option set wholesale.
func (s *MemoryStore) PutOptionSet(ctx context.Context, set *OptionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options[set.Name] = *set
	return nil
}

// Close stops the expiry sweep.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

// Len reports how many live trend entries are held, for tests and stats.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for key, rec := range s.entries {
		if now.After(rec.expiration) {
			delete(s.entries, key)
		}
	}
	for name, set := range s.options {
		if now.After(set.ExpiresAt) {
			delete(s.options, name)
		}
	}
}
