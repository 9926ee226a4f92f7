// Package cache provides an in-memory domain.CacheStore.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

// MemoryStore is a thread-safe LRU cache store. Entries are evicted least
// recently used first once maxEntries is exceeded; freshness is judged by the
// caller.
type MemoryStore struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*node
	head       *node // most recently used
	tail       *node // least recently used
}

type node struct {
	entry domain.CacheEntry
	prev  *node
	next  *node
}

// NewMemoryStore creates a store holding at most maxEntries entries. A
// non-positive limit means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		maxEntries: maxEntries,
		entries:    make(map[string]*node),
	}
}

// Get returns the entry for key and records the access.
func (s *MemoryStore) Get(_ context.Context, key string, now time.Time) (domain.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.entries[key]
	if !ok {
		return domain.CacheEntry{}, false, nil
	}
	n.entry.Hits++
	n.entry.LastAccessed = now
	s.moveToFront(n)
	return cloneEntry(n.entry), true, nil
}

// Put stores entry, overwriting any existing value for its key. Hit counts
// restart with the new value.
func (s *MemoryStore) Put(_ context.Context, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry = cloneEntry(entry)
	if entry.LastAccessed.IsZero() {
		entry.LastAccessed = entry.Timestamp
	}

	if n, ok := s.entries[entry.Key]; ok {
		n.entry = entry
		s.moveToFront(n)
		return nil
	}

	n := &node{entry: entry}
	s.entries[entry.Key] = n
	s.addToFront(n)

	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		s.evictTail()
	}
	return nil
}

// Purge deletes every entry that is no longer fresh at now.
func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, n := range s.entries {
		if !n.entry.Fresh(now) {
			s.remove(n)
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Expiring lists fresh entries of dataType whose TTL ends within the window,
// soonest first.
func (s *MemoryStore) Expiring(_ context.Context, dataType domain.DataType, now time.Time, within time.Duration) ([]domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := now.Add(within)
	var out []domain.CacheEntry
	for _, n := range s.entries {
		e := n.entry
		if e.DataType != dataType || !e.Fresh(now) || e.ExpiresAt().After(deadline) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	slices.SortFunc(out, func(a, b domain.CacheEntry) int {
		return a.ExpiresAt().Compare(b.ExpiresAt())
	})
	return out, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneEntry(e domain.CacheEntry) domain.CacheEntry {
	e.Data = slices.Clone(e.Data)
	return e
}

func (s *MemoryStore) moveToFront(n *node) {
	if n == s.head {
		return
	}
	s.remove(n)
	s.addToFront(n)
}

func (s *MemoryStore) addToFront(n *node) {
	n.next = s.head
	n.prev = nil
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *MemoryStore) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
}

func (s *MemoryStore) evictTail() {
	if s.tail == nil {
		return
	}
	delete(s.entries, s.tail.entry.Key)
	s.remove(s.tail)
}
