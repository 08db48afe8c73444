package tracker

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// BlockTracker is the subset of tracker operations the allocator adapter and
// the typed helpers need. Both *Tracker and *Synchronized implement it.
type BlockTracker interface {
	Register(size int, kind Kind) ([]byte, Handle, error)
	Release(b []byte, kind Kind) error
	EnrichHandle(h Handle, file string, line int, typeName string, objectSize int) bool
	SizeOf(b []byte) (int, error)
}

var (
	_ BlockTracker = (*Tracker)(nil)
	_ BlockTracker = (*Synchronized)(nil)
)

// Allocator adapts a tracker to arrow's memory.Allocator so arrow buffers and
// builders can run on tracked memory. Every block is tracked as KindArray and
// tagged with TypeName.
//
// Blocks are 16-byte aligned, not 64-byte aligned like memory.GoAllocator.
type Allocator struct {
	bt       BlockTracker
	TypeName string
}

var _ memory.Allocator = (*Allocator)(nil)

// NewAllocator returns an arrow allocator over bt.
func NewAllocator(bt BlockTracker) *Allocator {
	return &Allocator{bt: bt, TypeName: "arrow.Buffer"}
}

// Allocate panics with an exhaustion error when the tracker cannot satisfy size.
func (a *Allocator) Allocate(size int) []byte {
	b, h, err := a.bt.Register(size, KindArray)
	if err != nil {
		panic(err)
	}
	a.bt.EnrichHandle(h, "arrow", 0, a.TypeName, size)
	return b
}

// Reallocate allocates size bytes, copies the old contents and releases b.
func (a *Allocator) Reallocate(size int, b []byte) []byte {
	if b == nil {
		return a.Allocate(size)
	}
	old, err := a.bt.SizeOf(b)
	if err != nil {
		panic(err)
	}
	if old == size {
		return b
	}
	nb := a.Allocate(size)
	copy(nb, b[:old])
	a.Free(b)
	return nb
}

// Free panics with the consistency error when b is not a live array block of
// the tracker.
func (a *Allocator) Free(b []byte) {
	if err := a.bt.Release(b, KindArray); err != nil {
		panic(err)
	}
}
