// Package tracker implements an allocation tracker that records every live
// block handed out through it and reports leaks at shutdown.
//
// # Basic Usage
//
//	t, err := tracker.New(tracker.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	buf := t.Allocate(4096, tracker.KindArray)
//	t.Enrich(uintptr(unsafe.Pointer(&buf[0])), "main.go", 12, "[]byte", 4096)
//	...
//	if err := t.Release(buf, tracker.KindArray); err != nil {
//		// consistency violation: double release, kind mismatch, foreign block
//	}
//
//	report, _ := t.Close() // prints the leak report
//
// Allocation is two-phase. Register hands out the block, and enrichment
// attaches the source location and type name afterwards. Enrich finds the
// record by address, trying the most recent registration first; EnrichHandle
// uses the Handle returned by Register and never searches.
//
// # Typed Helpers
//
//	p := tracker.Alloc[Point](t)
//	xs := tracker.AllocSlice[int64](t, 100)
//	tracker.Delete(t, p)
//	tracker.DeleteSlice(t, xs)
//
// The typed helpers enrich with the caller's location and the type name of T.
// T must not contain pointers.
//
// # Thread Safety
//
// Tracker is not thread-safe. Use NewSynchronized for concurrent access, or
// Default for the lazily created process-wide instance.
//
// # Arrow
//
// NewAllocator adapts a tracker to arrow's memory.Allocator so arrow buffers
// and builders run on tracked memory.
package tracker
