package memory

import "sync"

// RecordSet keeps at most one record per key. It is the crawl's dedup store:
// many workers insert concurrently, and the contents are read once the crawl
// has drained.
type RecordSet[K comparable, R any] struct {
	mu      sync.Mutex
	keys    map[K]struct{}
	records []R
}

// NewRecordSet constructs an empty RecordSet.
func NewRecordSet[K comparable, R any]() *RecordSet[K, R] {
	return &RecordSet[K, R]{
		keys: make(map[K]struct{}),
	}
}

// InsertIfAbsent stores record under key unless the key is already present.
// It reports whether the record was stored; the first record for a key wins.
func (s *RecordSet[K, R]) InsertIfAbsent(key K, record R) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return false
	}
	s.keys[key] = struct{}{}
	s.records = append(s.records, record)
	return true
}

// Len returns the number of stored records.
func (s *RecordSet[K, R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of the stored records in insertion order. Callers
// take it after the crawl drains; mid-crawl snapshots are consistent but
// immediately stale.
func (s *RecordSet[K, R]) Snapshot() []R {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]R, len(s.records))
	copy(out, s.records)
	return out
}
