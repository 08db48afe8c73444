package memory

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedAllocator_Unlimited(t *testing.T) {
	checked := memory.NewCheckedAllocator(memory.NewGoAllocator())
	alloc := NewLimitedAllocator(checked, 0)

	buf := alloc.Allocate(1024)
	require.Len(t, buf, 1024)
	assert.Equal(t, int64(1024), alloc.Allocated())

	alloc.Free(buf)
	assert.Equal(t, int64(0), alloc.Allocated())
	checked.AssertSize(t, 0)
}

func TestLimitedAllocator_RefusesOverBudget(t *testing.T) {
	alloc := NewLimitedAllocator(memory.NewGoAllocator(), 100)

	first := alloc.Allocate(60)
	require.Len(t, first, 60)

	assert.Nil(t, alloc.Allocate(41), "request past the budget must be refused")
	assert.Equal(t, int64(60), alloc.Allocated())

	second := alloc.Allocate(40)
	require.Len(t, second, 40)
	assert.Equal(t, int64(100), alloc.Allocated())

	alloc.Free(first)
	third := alloc.Allocate(50)
	assert.Len(t, third, 50)
}

func TestLimitedAllocator_Reallocate(t *testing.T) {
	alloc := NewLimitedAllocator(memory.NewGoAllocator(), 64)

	buf := alloc.Allocate(16)
	buf[0] = 7

	grown := alloc.Reallocate(32, buf)
	require.Len(t, grown, 32)
	assert.Equal(t, byte(7), grown[0])
	assert.Equal(t, int64(32), alloc.Allocated())

	assert.Nil(t, alloc.Reallocate(128, grown))
	assert.Equal(t, int64(32), alloc.Allocated())

	shrunk := alloc.Reallocate(8, grown)
	assert.Len(t, shrunk, 8)
	assert.Equal(t, int64(8), alloc.Allocated())
}

func TestLimitedAllocator_DefaultsAndNegativeLimit(t *testing.T) {
	alloc := NewLimitedAllocator(nil, -5)
	assert.Equal(t, int64(0), alloc.Limit())
	assert.Len(t, alloc.Allocate(8), 8)
}

type panicAllocator struct{ memory.Allocator }

func (panicAllocator) Allocate(int) []byte { panic("boom") }

func TestLimitedAllocator_PanicReleasesReservation(t *testing.T) {
	alloc := NewLimitedAllocator(panicAllocator{memory.NewGoAllocator()}, 100)

	assert.Panics(t, func() { alloc.Allocate(80) })
	assert.Equal(t, int64(0), alloc.Allocated())
}
