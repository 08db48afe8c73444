package tracker

import (
	"sync"
)

// Synchronized is a mutex-protected wrapper around Tracker for concurrent use.
// Every method takes the same lock, so allocation, enrichment and release
// from different goroutines observe one consistent registry.
type Synchronized struct {
	mu sync.Mutex
	t  *Tracker
}

// NewSynchronized wraps t. t must not be used directly afterwards.
func NewSynchronized(t *Tracker) *Synchronized {
	return &Synchronized{t: t}
}

// Allocate is Tracker.Allocate under the lock.
func (s *Synchronized) Allocate(size int, kind Kind) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Allocate(size, kind)
}

// TryAllocate is Tracker.TryAllocate under the lock.
func (s *Synchronized) TryAllocate(size int, kind Kind) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.TryAllocate(size, kind)
}

// Register is Tracker.Register under the lock.
func (s *Synchronized) Register(size int, kind Kind) ([]byte, Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Register(size, kind)
}

// Release is Tracker.Release under the lock.
func (s *Synchronized) Release(b []byte, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Release(b, kind)
}

// Enrich is Tracker.Enrich under the lock.
func (s *Synchronized) Enrich(address uintptr, file string, line int, typeName string, objectSize int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Enrich(address, file, line, typeName, objectSize)
}

// EnrichHandle is Tracker.EnrichHandle under the lock.
func (s *Synchronized) EnrichHandle(h Handle, file string, line int, typeName string, objectSize int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.EnrichHandle(h, file, line, typeName, objectSize)
}

// SizeOf is Tracker.SizeOf under the lock.
func (s *Synchronized) SizeOf(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.SizeOf(b)
}

// Stats returns a snapshot of the counters.
func (s *Synchronized) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Stats()
}

// State returns the wrapped tracker's lifecycle state.
func (s *Synchronized) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.State()
}

// TypeTallies is Tracker.TypeTallies under the lock.
func (s *Synchronized) TypeTallies() []TypeTally {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.TypeTallies()
}

// LiveRecords returns copies of the live records.
func (s *Synchronized) LiveRecords() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.LiveRecords()
}

// DisplayAllocations is Tracker.DisplayAllocations under the lock.
func (s *Synchronized) DisplayAllocations(groupByCount, showDetail bool) AllocationTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.DisplayAllocations(groupByCount, showDetail)
}

// DisplayStatTable is Tracker.DisplayStatTable under the lock.
func (s *Synchronized) DisplayStatTable() []StatRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.DisplayStatTable()
}

// Close shuts the wrapped tracker down and returns its leak report.
func (s *Synchronized) Close() (LeakReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Close()
}
