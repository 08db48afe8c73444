package main

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/rs/zerolog"

	"github.com/23skdu/memtracer/tracker"
)

// Complex is the object type the demo allocates through the typed helpers.
type Complex struct {
	Re, Im float64
}

// runWorkload exercises the tracker the way an instrumented program would:
// arrays that are freed, objects of which LeakObjects are never freed, and an
// arrow column built on tracked memory. It returns the leaked objects.
func runWorkload(s *tracker.Synchronized, cfg Config, logger zerolog.Logger) ([]*Complex, error) {
	for round := 0; round < cfg.Rounds; round++ {
		xs := tracker.AllocSlice[int64](s, cfg.ArrayLen)
		for i := range xs {
			xs[i] = int64(i * round)
		}
		tracker.DeleteSlice(s, xs)
	}

	objects := make([]*Complex, cfg.Objects)
	for i := range objects {
		c := tracker.Alloc[Complex](s)
		c.Re, c.Im = float64(i), -float64(i)
		objects[i] = c
	}

	s.DisplayAllocations(true, true)
	s.DisplayStatTable()

	leaked := objects[:cfg.LeakObjects]
	for _, c := range objects[cfg.LeakObjects:] {
		tracker.Delete(s, c)
	}

	if err := buildColumn(s, cfg.ArrayLen); err != nil {
		return nil, err
	}

	stats := s.Stats()
	logger.Info().
		Int64("current_bytes", stats.CurrentBytes).
		Int64("peak_bytes", stats.PeakBytes).
		Int64("current_blocks", stats.CurrentBlocks).
		Int64("allocations", stats.TotalAllocations).
		Msg("Workload finished")
	return leaked, nil
}

// buildColumn builds and discards an arrow float64 column on tracked memory.
func buildColumn(s *tracker.Synchronized, n int) error {
	alloc := tracker.NewAllocator(s)
	alloc.TypeName = "arrow.Float64"

	bldr := array.NewFloat64Builder(alloc)
	defer bldr.Release()
	for i := 0; i < n; i++ {
		bldr.Append(float64(i) / 2)
	}
	col := bldr.NewFloat64Array()
	defer col.Release()

	if col.Len() != n {
		return fmt.Errorf("column has %d values, want %d", col.Len(), n)
	}
	return nil
}
