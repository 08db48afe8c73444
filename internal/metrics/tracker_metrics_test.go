package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerMetrics_Registered(t *testing.T) {
	collectors := map[string]prometheus.Collector{
		"memtracer_current_bytes":                TrackerCurrentBytes,
		"memtracer_peak_bytes":                   TrackerPeakBytes,
		"memtracer_current_blocks":               TrackerCurrentBlocks,
		"memtracer_peak_blocks":                  TrackerPeakBlocks,
		"memtracer_allocations_total":            AllocationsTotal,
		"memtracer_releases_total":               ReleasesTotal,
		"memtracer_allocation_failures_total":    AllocationFailuresTotal,
		"memtracer_consistency_violations_total": ConsistencyViolationsTotal,
		"memtracer_enrichments_total":            EnrichmentsTotal,
		"memtracer_leaked_blocks":                LeakedBlocks,
		"memtracer_leaked_bytes":                 LeakedBytes,
	}

	for name, c := range collectors {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_ = testutil.CollectAndCount(c, name)
			})
		})
	}
}

func TestTrackerMetrics_Labels(t *testing.T) {
	AllocationsTotal.WithLabelValues("labels_test", "array").Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(AllocationsTotal.WithLabelValues("labels_test", "array")))

	TrackerCurrentBytes.WithLabelValues("labels_test").Set(42)
	expected := `
# HELP memtracer_current_bytes Bytes currently held by live tracked allocations
# TYPE memtracer_current_bytes gauge
memtracer_current_bytes{tracker="labels_test"} 42
`
	assert.NoError(t, testutil.CollectAndCompare(TrackerCurrentBytes, strings.NewReader(expected), "memtracer_current_bytes"))
}
