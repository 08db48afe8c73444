package tracker

import (
	"bytes"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/memtracer/internal/logging"
	"github.com/23skdu/memtracer/internal/metrics"
)

// newTestTracker builds a tracker named after the test so metric series do
// not collide between tests.
func newTestTracker(t *testing.T, mutate ...func(*Config)) (*Tracker, *bytes.Buffer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Name = t.Name()
	for _, m := range mutate {
		m(&cfg)
	}
	var out bytes.Buffer
	tr, err := New(cfg, WithLogger(logging.DiscardLogger()), WithOutput(&out))
	require.NoError(t, err)
	return tr, &out
}

type panickingAllocator struct{ memory.Allocator }

func (panickingAllocator) Allocate(int) []byte { panic("out of memory") }

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = ""
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLifecycle_LazyActivation(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.Equal(t, StateUninitialized, tr.State())

	b := tr.Allocate(8, KindSingle)
	assert.Equal(t, StateActive, tr.State())
	require.NoError(t, tr.Release(b, KindSingle))

	_, err := tr.Close()
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, tr.State())
}

func TestRegister_Basic(t *testing.T) {
	tr, _ := newTestTracker(t)

	b, h, err := tr.Register(24, KindSingle)
	require.NoError(t, err)
	assert.Len(t, b, 24)
	assert.Equal(t, addressOf(b), h.Address)
	assert.True(t, h.valid())

	size, err := tr.SizeOf(b)
	require.NoError(t, err)
	assert.Equal(t, 24, size)

	recs := tr.LiveRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, Unknown, recs[0].File)
	assert.Equal(t, 0, recs[0].Line)
	assert.Equal(t, Unknown, recs[0].TypeName)
	assert.False(t, recs[0].Enriched())

	stats := tr.Stats()
	assert.Equal(t, int64(24), stats.CurrentBytes)
	assert.Equal(t, int64(1), stats.CurrentBlocks)
	assert.Equal(t, int64(1), stats.TotalAllocations)

	require.NoError(t, tr.Release(b, KindSingle))
	assert.False(t, h.valid())
	assert.Empty(t, tr.LiveRecords())
	assert.Equal(t, int64(1), tr.Stats().TotalReleases)
}

func TestRegister_ZeroSize(t *testing.T) {
	tr, _ := newTestTracker(t)

	a := tr.Allocate(0, KindArray)
	b := tr.Allocate(0, KindArray)
	assert.Len(t, a, 0)
	assert.NotEqual(t, addressOf(a), addressOf(b), "zero-size blocks need distinct addresses")
	assert.Equal(t, 2, tr.Bucket(0, KindArray).LiveCount())
	assert.Equal(t, int64(0), tr.GetCurrentMemory())

	require.NoError(t, tr.Release(a, KindArray))
	require.NoError(t, tr.Release(b, KindArray))
}

func TestRegister_InvalidKind(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, _, err := tr.Register(8, Kind(7))
	require.Error(t, err)
	assert.True(t, IsConsistencyViolation(err))
}

func TestScenarioA_ArrayLeaks(t *testing.T) {
	tr, out := newTestTracker(t)

	for i := 0; i < 5; i++ {
		tr.Allocate(4, KindArray)
	}
	assert.Equal(t, int64(20), tr.GetCurrentMemory())

	report, err := tr.Close()
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, 4, report.Groups[0].Size)
	assert.Equal(t, KindArray, report.Groups[0].Kind)
	assert.Len(t, report.Groups[0].Records, 5)
	assert.Equal(t, 5, report.TotalLeaks)
	assert.Equal(t, int64(20), report.TotalBytes)
	assert.Contains(t, out.String(), "5 memory leaks detected of size 4 and kind array")
}

func TestScenarioC_BucketPersists(t *testing.T) {
	tr, _ := newTestTracker(t)

	a := tr.Allocate(16, KindSingle)
	b := tr.Allocate(16, KindSingle)
	bucket := tr.Bucket(16, KindSingle)
	require.NotNil(t, bucket)
	assert.Equal(t, 2, bucket.LiveCount())

	require.NoError(t, tr.Release(a, KindSingle))
	assert.Equal(t, 1, bucket.LiveCount())

	require.NoError(t, tr.Release(b, KindSingle))
	assert.Same(t, bucket, tr.Bucket(16, KindSingle))
	assert.Equal(t, 0, bucket.LiveCount())
	assert.Equal(t, 1, tr.index.Len(KindSingle))
}

func TestBucket_RecordsNewestFirst(t *testing.T) {
	tr, _ := newTestTracker(t)

	a := tr.Allocate(32, KindSingle)
	b := tr.Allocate(32, KindSingle)
	c := tr.Allocate(32, KindSingle)

	recs := tr.Bucket(32, KindSingle).Records()
	require.Len(t, recs, 3)
	assert.Equal(t, addressOf(c), recs[0].Address)
	assert.Equal(t, addressOf(b), recs[1].Address)
	assert.Equal(t, addressOf(a), recs[2].Address)

	// removing from the middle keeps the others in order
	require.NoError(t, tr.Release(b, KindSingle))
	recs = tr.Bucket(32, KindSingle).Records()
	require.Len(t, recs, 2)
	assert.Equal(t, addressOf(c), recs[0].Address)
	assert.Equal(t, addressOf(a), recs[1].Address)
}

func TestRelease_Nil(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.NoError(t, tr.Release(nil, KindSingle))
}

func TestRelease_DoubleRelease(t *testing.T) {
	tr, _ := newTestTracker(t)

	b := tr.Allocate(8, KindSingle)
	require.NoError(t, tr.Release(b, KindSingle))

	err := tr.Release(b, KindSingle)
	require.Error(t, err)
	assert.True(t, IsConsistencyViolation(err))
	assert.Contains(t, err.Error(), "not a live tracked allocation")
	assert.Equal(t, int64(0), tr.GetCurrentBlocks())
	assert.Equal(t, int64(1), tr.Stats().TotalReleases)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConsistencyViolationsTotal.WithLabelValues(t.Name())))
}

func TestRelease_KindMismatch(t *testing.T) {
	tr, _ := newTestTracker(t)

	b := tr.Allocate(8, KindSingle)
	err := tr.Release(b, KindArray)
	require.Error(t, err)
	assert.True(t, IsConsistencyViolation(err))
	assert.Equal(t, int64(1), tr.GetCurrentBlocks(), "a rejected release leaves the record live")

	require.NoError(t, tr.Release(b, KindSingle))
}

func TestRelease_ForeignBlock(t *testing.T) {
	tr, _ := newTestTracker(t)
	live := tr.Allocate(8, KindSingle)

	foreign := map[string][]byte{
		// starts at the beginning of its own allocation: nothing readable in front
		"whole allocation": make([]byte, 8),
		"sub-slice":        make([]byte, 64)[32:40],
		"empty":            make([]byte, 0),
		"interior of live": live[1:],
	}
	for name, b := range foreign {
		t.Run(name, func(t *testing.T) {
			err := tr.Release(b, KindSingle)
			require.Error(t, err)
			assert.True(t, IsConsistencyViolation(err))
		})
	}

	assert.Equal(t, int64(1), tr.GetCurrentBlocks())
	require.NoError(t, tr.Release(live, KindSingle))
}

func TestRelease_ForgedHeaderIgnored(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Allocate(8, KindSingle)

	buf := make([]byte, 64)
	writeHeader(buf[16:32], AllocationHeader{RawSize: 8, Kind: KindSingle})

	err := tr.Release(buf[32:40], KindSingle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a live tracked allocation")
	assert.Equal(t, int64(1), tr.GetCurrentBlocks())
}

func TestRelease_HeaderOverwritten(t *testing.T) {
	tr, _ := newTestTracker(t)
	b := tr.Allocate(8, KindSingle)
	hdr, ok := headerOf(b)
	require.True(t, ok)
	saved := append([]byte(nil), hdr...)

	writeHeader(hdr, AllocationHeader{RawSize: 99, Kind: KindSingle})
	err := tr.Release(b, KindSingle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bucket for size 99")

	clear(hdr)
	err = tr.Release(b, KindSingle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header overwritten")

	copy(hdr, saved)
	require.NoError(t, tr.Release(b, KindSingle))
}

func TestSizeOf_Foreign(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.SizeOf(make([]byte, 8))
	assert.True(t, IsConsistencyViolation(err))

	b := tr.Allocate(8, KindSingle)
	require.NoError(t, tr.Release(b, KindSingle))
	_, err = tr.SizeOf(b)
	assert.True(t, IsConsistencyViolation(err))
}

func TestExhaustion_MemoryLimit(t *testing.T) {
	tr, _ := newTestTracker(t, func(c *Config) { c.MemoryLimit = 64 })

	// 32 + header fits
	small := tr.TryAllocate(32, KindArray)
	require.NotNil(t, small)

	assert.Nil(t, tr.TryAllocate(32, KindArray))
	assert.Panics(t, func() { tr.Allocate(32, KindArray) })

	_, _, err := tr.Register(32, KindArray)
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AllocationFailuresTotal.WithLabelValues(t.Name())))

	// failed requests leave no trace
	assert.Equal(t, int64(1), tr.GetCurrentBlocks())
	assert.Equal(t, int64(32), tr.GetCurrentMemory())

	require.NoError(t, tr.Release(small, KindArray))
	assert.NotNil(t, tr.TryAllocate(32, KindArray))
}

func TestExhaustion_AllocatorPanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = t.Name()
	tr, err := New(cfg,
		WithLogger(logging.DiscardLogger()),
		WithAllocator(panickingAllocator{memory.NewGoAllocator()}),
	)
	require.NoError(t, err)

	assert.Nil(t, tr.TryAllocate(8, KindSingle))
	_, _, err = tr.Register(8, KindSingle)
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.Contains(t, err.Error(), "out of memory")
}

func TestExhaustion_SizeOutOfRange(t *testing.T) {
	tr, _ := newTestTracker(t)
	assert.Nil(t, tr.TryAllocate(-1, KindSingle))

	_, _, err := tr.Register(math.MaxInt, KindArray)
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, int64(0), tr.GetCurrentBlocks())
}

func TestLifecycle_AfterClose(t *testing.T) {
	tr, _ := newTestTracker(t)
	leaked := tr.Allocate(8, KindSingle)

	_, err := tr.Close()
	require.NoError(t, err)

	_, _, err = tr.Register(8, KindSingle)
	assert.True(t, IsLifecycle(err))
	assert.Nil(t, tr.TryAllocate(8, KindSingle))
	assert.Panics(t, func() { tr.Allocate(8, KindSingle) })

	err = tr.Release(leaked, KindSingle)
	assert.True(t, IsLifecycle(err))
	assert.False(t, tr.Enrich(addressOf(leaked), "f.go", 1, "T", 8))
}

func TestRawAllocatorBalanced(t *testing.T) {
	checked := memory.NewCheckedAllocator(memory.NewGoAllocator())
	cfg := DefaultConfig()
	cfg.Name = t.Name()
	tr, err := New(cfg, WithLogger(logging.DiscardLogger()), WithAllocator(checked))
	require.NoError(t, err)

	var blocks [][]byte
	for i := 0; i < 50; i++ {
		blocks = append(blocks, tr.Allocate(i*3, Kinds[i%2]))
	}
	assert.Equal(t, int64(0), int64(checked.CurrentAlloc())-tr.raw.Allocated())

	for i, b := range blocks {
		require.NoError(t, tr.Release(b, Kinds[i%2]))
	}
	checked.AssertSize(t, 0)
	assert.Equal(t, int64(0), tr.raw.Allocated())
}

func TestStats_Metrics(t *testing.T) {
	tr, _ := newTestTracker(t)
	name := t.Name()

	a := tr.Allocate(100, KindArray)
	b := tr.Allocate(50, KindSingle)
	require.NoError(t, tr.Release(a, KindArray))

	assert.Equal(t, 50.0, testutil.ToFloat64(metrics.TrackerCurrentBytes.WithLabelValues(name)))
	assert.Equal(t, 150.0, testutil.ToFloat64(metrics.TrackerPeakBytes.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrackerCurrentBlocks.WithLabelValues(name)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TrackerPeakBlocks.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AllocationsTotal.WithLabelValues(name, "array")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReleasesTotal.WithLabelValues(name, "array")))

	require.NoError(t, tr.Release(b, KindSingle))
	assert.Equal(t, int64(150), tr.GetPeakMemory())
	assert.Equal(t, int64(2), tr.GetPeakBlocks())
	assert.Equal(t, int64(0), tr.GetCurrentMemory())
}
