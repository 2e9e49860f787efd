package window

import (
	"sort"
	"sync"
	"time"
)

// Store keeps one bounded Ring per key and is safe for concurrent push and read.
// Unknown keys behave as empty collections.
type Store[T any] struct {
	mu        sync.RWMutex
	capacity  int
	timestamp func(T) time.Time
	rings     map[string]*Ring[T]
}

// NewStore creates a keyed store. timestamp extracts the time used by SumSince and CountSince.
func NewStore[T any](capacity int, timestamp func(T) time.Time) *Store[T] {
	return &Store[T]{
		capacity:  capacity,
		timestamp: timestamp,
		rings:     make(map[string]*Ring[T]),
	}
}

func (s *Store[T]) Push(key string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.rings[key]
	if !ok {
		ring = NewRing[T](s.capacity)
		s.rings[key] = ring
	}
	ring.Push(item)
}

// Snapshot returns the most recent n items for key, oldest first.
func (s *Store[T]) Snapshot(key string, n int) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[key]
	if !ok {
		return []T{}
	}
	return ring.Last(n)
}

// All returns every item stored for key, oldest first.
func (s *Store[T]) All(key string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[key]
	if !ok {
		return []T{}
	}
	return ring.Items()
}

func (s *Store[T]) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ring, ok := s.rings[key]; ok {
		return ring.Len()
	}
	return 0
}

// TotalLen sums the sizes of all rings.
func (s *Store[T]) TotalLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, ring := range s.rings {
		total += ring.Len()
	}
	return total
}

// Keys returns the known keys in sorted order.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.rings))
	for k := range s.rings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SumSince reduces value over the items of key stamped at or after cutoff.
func (s *Store[T]) SumSince(key string, cutoff time.Time, value func(T) float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[key]
	if !ok {
		return 0
	}
	sum := 0.0
	for _, item := range ring.Items() {
		if !s.timestamp(item).Before(cutoff) {
			sum += value(item)
		}
	}
	return sum
}

// CountSince counts the items of key stamped at or after cutoff.
func (s *Store[T]) CountSince(key string, cutoff time.Time) int {
	return int(s.SumSince(key, cutoff, func(T) float64 { return 1 }))
}

// Reset drops the ring stored under key.
func (s *Store[T]) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, key)
}
