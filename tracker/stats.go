package tracker

import (
	"github.com/23skdu/memtracer/internal/metrics"
)

// Stats is a snapshot of the tracker's running counters.
type Stats struct {
	CurrentBytes  int64
	PeakBytes     int64
	CurrentBlocks int64
	PeakBlocks    int64

	TotalAllocations int64
	TotalReleases    int64
}

func (t *Tracker) recordAllocation(size int, kind Kind) {
	s := &t.stats
	s.CurrentBytes += int64(size)
	s.CurrentBlocks++
	s.TotalAllocations++
	if s.CurrentBytes > s.PeakBytes {
		s.PeakBytes = s.CurrentBytes
	}
	if s.CurrentBlocks > s.PeakBlocks {
		s.PeakBlocks = s.CurrentBlocks
	}

	metrics.AllocationsTotal.WithLabelValues(t.cfg.Name, kind.String()).Inc()
	t.publishStats()
}

func (t *Tracker) recordRelease(size int, kind Kind) {
	s := &t.stats
	s.CurrentBytes -= int64(size)
	s.CurrentBlocks--
	s.TotalReleases++

	metrics.ReleasesTotal.WithLabelValues(t.cfg.Name, kind.String()).Inc()
	t.publishStats()
}

func (t *Tracker) publishStats() {
	name := t.cfg.Name
	metrics.TrackerCurrentBytes.WithLabelValues(name).Set(float64(t.stats.CurrentBytes))
	metrics.TrackerPeakBytes.WithLabelValues(name).Set(float64(t.stats.PeakBytes))
	metrics.TrackerCurrentBlocks.WithLabelValues(name).Set(float64(t.stats.CurrentBlocks))
	metrics.TrackerPeakBlocks.WithLabelValues(name).Set(float64(t.stats.PeakBlocks))
}

// Stats returns a snapshot of the counters.
func (t *Tracker) Stats() Stats {
	return t.stats
}

// GetCurrentMemory returns the bytes held by live allocations.
func (t *Tracker) GetCurrentMemory() int64 {
	return t.stats.CurrentBytes
}

// GetPeakMemory returns the highest value GetCurrentMemory has reached.
func (t *Tracker) GetPeakMemory() int64 {
	return t.stats.PeakBytes
}

// GetCurrentBlocks returns the number of live allocations.
func (t *Tracker) GetCurrentBlocks() int64 {
	return t.stats.CurrentBlocks
}

// GetPeakBlocks returns the highest value GetCurrentBlocks has reached.
func (t *Tracker) GetPeakBlocks() int64 {
	return t.stats.PeakBlocks
}
