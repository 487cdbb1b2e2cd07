package storage

import (
	"context"
	"sort"
	"sync"

	"incipit-hq/incipit/pkg/history"
)

// MemoryStorage implements history.Storage in process memory. Records are
// lost on restart. It is used for tests and for deployments that only want
// the dashboard's recent-history view.
type MemoryStorage struct {
	// records is kept sorted oldest first.
	records []*history.Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends copies of records.
func (s *MemoryStorage) Store(ctx context.Context, records []*history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := true
	for _, record := range records {
		recordCopy := *record
		if n := len(s.records); n > 0 && recordCopy.Time.Before(s.records[n-1].Time) {
			sorted = false
		}
		s.records = append(s.records, &recordCopy)
	}
	if !sorted {
		sort.SliceStable(s.records, func(i, j int) bool {
			return s.records[i].Time.Before(s.records[j].Time)
		})
	}

	return nil
}

// Query returns matching records newest first.
func (s *MemoryStorage) Query(ctx context.Context, query *history.Query) ([]*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := 0
	if query != nil {
		offset = query.Offset
	}
	limit := query.EffectiveLimit()

	results := []*history.Record{}
	skipped := 0
	for i := len(s.records) - 1; i >= 0 && len(results) < limit; i-- {
		record := s.records[i]
		if !query.Matches(record) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		recordCopy := *record
		results = append(results, &recordCopy)
	}

	return results, nil
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(ctx context.Context, query *history.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if query.Matches(record) {
			count++
		}
	}
	return count, nil
}

// Delete removes matching records.
func (s *MemoryStorage) Delete(ctx context.Context, query *history.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, record := range s.records {
		if query.Matches(record) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	clear(s.records[len(kept):])
	s.records = kept

	return deleted, nil
}

// Trim removes the oldest records beyond keep.
func (s *MemoryStorage) Trim(ctx context.Context, keep int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := int64(len(s.records)) - keep
	if excess <= 0 {
		return 0, nil
	}
	s.records = append([]*history.Record(nil), s.records[excess:]...)
	return excess, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close releases the stored records.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return nil
}
