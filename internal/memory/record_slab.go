package memory

import (
	"github.com/23skdu/memtracer/internal/metrics"
)

// DefaultRecordChunkLen is the number of records carved out of one slab chunk.
const DefaultRecordChunkLen = 256

// RecordSlab hands out fixed-layout records of type T from chunked storage.
//
// Chunks are plain Go heap allocations and are never routed through a tracked
// allocator, so bookkeeping can be created from inside the tracking path
// without recursing into it. A chunk is never resized once created, which
// keeps every *T handed out stable until Put or Reset.
//
// RecordSlab is NOT thread-safe.
type RecordSlab[T any] struct {
	name     string
	chunkLen int
	chunks   [][]T
	next     int // first never-used slot in the last chunk
	free     []*T
	inUse    int64
}

// NewRecordSlab creates an empty slab. The name labels its metrics.
func NewRecordSlab[T any](name string, chunkLen int) *RecordSlab[T] {
	if chunkLen <= 0 {
		chunkLen = DefaultRecordChunkLen
	}
	return &RecordSlab[T]{
		name:     name,
		chunkLen: chunkLen,
	}
}

// Get returns a zeroed record.
func (s *RecordSlab[T]) Get() *T {
	s.inUse++
	metrics.MetadataRecordsInUse.WithLabelValues(s.name).Inc()

	if n := len(s.free); n > 0 {
		p := s.free[n-1]
		s.free = s.free[:n-1]
		return p
	}

	if len(s.chunks) == 0 || s.next == s.chunkLen {
		s.chunks = append(s.chunks, make([]T, s.chunkLen))
		s.next = 0
		metrics.MetadataSlabsTotal.WithLabelValues(s.name).Inc()
	}
	chunk := s.chunks[len(s.chunks)-1]
	p := &chunk[s.next]
	s.next++
	return p
}

// Put zeroes the record and makes its slot available to Get again.
func (s *RecordSlab[T]) Put(p *T) {
	if p == nil {
		return
	}
	var zero T
	*p = zero
	s.free = append(s.free, p)
	s.inUse--
	metrics.MetadataRecordsInUse.WithLabelValues(s.name).Dec()
}

// Reset drops every chunk. Records handed out earlier must not be used afterwards.
func (s *RecordSlab[T]) Reset() {
	metrics.MetadataRecordsInUse.WithLabelValues(s.name).Sub(float64(s.inUse))
	s.chunks = nil
	s.free = nil
	s.next = 0
	s.inUse = 0
}

// InUse returns the number of records handed out and not yet returned.
func (s *RecordSlab[T]) InUse() int64 {
	return s.inUse
}

// NumChunks returns the number of chunks currently owned by the slab.
func (s *RecordSlab[T]) NumChunks() int {
	return len(s.chunks)
}

// Capacity returns the total number of record slots across all chunks.
func (s *RecordSlab[T]) Capacity() int {
	return len(s.chunks) * s.chunkLen
}
