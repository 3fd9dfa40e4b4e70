package audit

import (
	"context"
	"sync"
)

// RingStore is a thread-safe in-memory ring buffer Sink. It backs the
// audit listing endpoint and serves as the default sink when no
// external sink is configured.
type RingStore struct {
	mu      sync.RWMutex
	records []Record
	size    int
	head    int
	count   int
}

// NewRingStore creates a ring store with the specified capacity.
func NewRingStore(size int) *RingStore {
	return &RingStore{
		records: make([]Record, size),
		size:    size,
	}
}

// Write implements Sink.
func (s *RingStore) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.head] = rec
	s.head = (s.head + 1) % s.size
	if s.count < s.size {
		s.count++
	}
	return nil
}

// Records returns all stored records in chronological order.
func (s *RingStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, s.count)
	if s.count == 0 {
		return result
	}

	start := 0
	if s.count == s.size {
		start = s.head
	}
	for i := 0; i < s.count; i++ {
		result[i] = s.records[(start+i)%s.size]
	}
	return result
}

// Recent returns the most recent n records.
func (s *RingStore) Recent(n int) []Record {
	records := s.Records()
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
