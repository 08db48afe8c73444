package memory

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// LimitedAllocator wraps a base memory.Allocator and refuses requests that
// would push the outstanding byte count past a budget. A refused request
// returns nil, which callers treat as exhaustion of the underlying allocator.
type LimitedAllocator struct {
	memory.Allocator
	limit     int64 // 0 means unlimited
	allocated atomic.Int64
}

// NewLimitedAllocator creates an allocator that wraps the given base allocator.
// If base is nil, it uses memory.DefaultAllocator.
func NewLimitedAllocator(base memory.Allocator, limit int64) *LimitedAllocator {
	if base == nil {
		base = memory.DefaultAllocator
	}
	if limit < 0 {
		limit = 0
	}
	return &LimitedAllocator{Allocator: base, limit: limit}
}

func (a *LimitedAllocator) Allocate(size int) []byte {
	if !a.reserve(int64(size)) {
		return nil
	}
	done := false
	defer func() {
		// the base allocator panicked; give the reservation back
		if !done {
			a.allocated.Add(-int64(size))
		}
	}()
	b := a.Allocator.Allocate(size)
	done = true
	return b
}

func (a *LimitedAllocator) Reallocate(size int, b []byte) []byte {
	delta := int64(size - len(b))
	if delta > 0 && !a.reserve(delta) {
		return nil
	}
	if delta < 0 {
		a.allocated.Add(delta)
	}
	return a.Allocator.Reallocate(size, b)
}

func (a *LimitedAllocator) Free(b []byte) {
	a.allocated.Add(-int64(len(b)))
	a.Allocator.Free(b)
}

// Allocated returns the bytes handed out and not yet freed.
func (a *LimitedAllocator) Allocated() int64 {
	return a.allocated.Load()
}

// Limit returns the configured budget, 0 when unlimited.
func (a *LimitedAllocator) Limit() int64 {
	return a.limit
}

func (a *LimitedAllocator) reserve(n int64) bool {
	for {
		cur := a.allocated.Load()
		if a.limit > 0 && cur+n > a.limit {
			return false
		}
		if a.allocated.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

var _ memory.Allocator = (*LimitedAllocator)(nil)
