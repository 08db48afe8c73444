package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Allocation Tracker Metrics
// =============================================================================

var (
	// TrackerCurrentBytes mirrors the current-memory counter of a tracker
	TrackerCurrentBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_current_bytes",
			Help: "Bytes currently held by live tracked allocations",
		},
		[]string{"tracker"},
	)

	// TrackerPeakBytes mirrors the peak-memory counter of a tracker
	TrackerPeakBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_peak_bytes",
			Help: "Highest number of bytes ever held by live tracked allocations",
		},
		[]string{"tracker"},
	)

	// TrackerCurrentBlocks mirrors the current-block counter of a tracker
	TrackerCurrentBlocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_current_blocks",
			Help: "Number of live tracked allocations",
		},
		[]string{"tracker"},
	)

	// TrackerPeakBlocks mirrors the peak-block counter of a tracker
	TrackerPeakBlocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_peak_blocks",
			Help: "Highest number of simultaneously live tracked allocations",
		},
		[]string{"tracker"},
	)

	// AllocationsTotal counts successful registrations by kind
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_allocations_total",
			Help: "Total number of tracked allocations by kind",
		},
		[]string{"tracker", "kind"}, // kind: "non-array", "array"
	)

	// ReleasesTotal counts successful releases by kind
	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_releases_total",
			Help: "Total number of tracked releases by kind",
		},
		[]string{"tracker", "kind"},
	)

	// AllocationFailuresTotal counts allocation requests the raw allocator could not satisfy
	AllocationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_allocation_failures_total",
			Help: "Total number of allocation requests that failed with exhaustion",
		},
		[]string{"tracker"},
	)

	// ConsistencyViolationsTotal counts releases that matched no live record
	ConsistencyViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_consistency_violations_total",
			Help: "Total number of internal-consistency violations detected on release",
		},
		[]string{"tracker"},
	)

	// EnrichmentsTotal counts enrichment calls by resolution path
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_enrichments_total",
			Help: "Total number of enrichment calls by resolution path",
		},
		[]string{"tracker", "path"}, // path: "handle", "cursor", "search", "miss"
	)

	// LeakedBlocks is set once by the shutdown sweep
	LeakedBlocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_leaked_blocks",
			Help: "Number of allocations still live at tracker shutdown",
		},
		[]string{"tracker"},
	)

	// LeakedBytes is set once by the shutdown sweep
	LeakedBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_leaked_bytes",
			Help: "Bytes still held by live allocations at tracker shutdown",
		},
		[]string{"tracker"},
	)

	// MetadataRecordsInUse tracks slots handed out by the metadata stores
	MetadataRecordsInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memtracer_metadata_records",
			Help: "Metadata records currently handed out by a record slab",
		},
		[]string{"store"},
	)

	// MetadataSlabsTotal counts slab chunks created by the metadata stores
	MetadataSlabsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memtracer_metadata_slabs_total",
			Help: "Total number of record slab chunks allocated",
		},
		[]string{"store"},
	)

	// LeakSnapshotWriteDurationSeconds measures Parquet leak snapshot writes
	LeakSnapshotWriteDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memtracer_leak_snapshot_write_duration_seconds",
		Help:    "Time spent writing the Parquet leak snapshot",
		Buckets: prometheus.DefBuckets,
	})
)
