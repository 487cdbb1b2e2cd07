package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats implements thread-safe resolution statistics using atomic operations.
// All counters are updated atomically for lock-free performance.
type Stats struct {
	total     atomic.Int64
	backend   atomic.Int64
	dashboard atomic.Int64
	unknown   atomic.Int64

	// perBackend tracks resolutions per backend address
	perBackend sync.Map // map[string]*atomic.Int64

	lastResetTime time.Time
	mu            sync.RWMutex
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Total         int64            `json:"total"`
	Backend       int64            `json:"backend"`
	Dashboard     int64            `json:"dashboard"`
	Unknown       int64            `json:"unknown"`
	PerBackend    map[string]int64 `json:"per_backend"`
	LastResetTime time.Time        `json:"last_reset_time"`
}

// NewStats creates a new statistics tracker.
func NewStats() *Stats {
	return &Stats{lastResetTime: time.Now()}
}

// Record counts one resolution.
func (s *Stats) Record(t Target) {
	s.total.Add(1)
	switch t.Kind() {
	case KindBackend:
		s.backend.Add(1)
		val, _ := s.perBackend.LoadOrStore(t.Addr(), &atomic.Int64{})
		val.(*atomic.Int64).Add(1)
	case KindDashboard:
		s.dashboard.Add(1)
	default:
		s.unknown.Add(1)
	}
}

// Snapshot returns a point-in-time snapshot of the statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perBackend := make(map[string]int64)
	s.perBackend.Range(func(key, value any) bool {
		perBackend[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return StatsSnapshot{
		Total:         s.total.Load(),
		Backend:       s.backend.Load(),
		Dashboard:     s.dashboard.Load(),
		Unknown:       s.unknown.Load(),
		PerBackend:    perBackend,
		LastResetTime: s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.backend.Store(0)
	s.dashboard.Store(0)
	s.unknown.Store(0)

	s.perBackend.Range(func(key, value any) bool {
		s.perBackend.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
