package tracker

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"

	trackererrors "github.com/23skdu/memtracer/internal/errors"
	"github.com/23skdu/memtracer/internal/logging"
	rawmem "github.com/23skdu/memtracer/internal/memory"
	"github.com/23skdu/memtracer/internal/metrics"
)

// Tracker records every live allocation made through it, keyed by size and
// kind, and reports leaks when closed.
//
// A Tracker is NOT thread-safe. Wrap it with NewSynchronized when more than
// one goroutine allocates through it.
type Tracker struct {
	cfg     Config
	logger  zerolog.Logger
	console io.Writer
	raw     *rawmem.LimitedAllocator
	state   State

	index   *bucketIndex
	records *rawmem.RecordSlab[Record]
	nextGen uint64

	// recent is the last record created by register; enrichment tries it
	// before searching.
	recent *Record

	tallies    map[string]*TypeTally
	tallyOrder []string

	stats Stats
	final *LeakReport
}

// Option customizes a Tracker built by New.
type Option func(*Tracker)

// WithAllocator sets the underlying allocator tracked blocks are obtained from.
func WithAllocator(mem memory.Allocator) Option {
	return func(t *Tracker) {
		t.raw = rawmem.NewLimitedAllocator(mem, t.cfg.MemoryLimit)
	}
}

// WithLogger replaces the logger built from the config.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithOutput sets the console sink for reports. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(t *Tracker) {
		t.console = w
	}
}

// New creates a tracker in the Uninitialized state. It becomes Active on
// first use.
func New(cfg Config, opts ...Option) (*Tracker, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, trackererrors.WrapConfigurationError(err, "new_tracker", "invalid config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Format: cfg.LogFormat,
		Level:  cfg.LogLevel,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, trackererrors.WrapConfigurationError(err, "new_tracker", "invalid logger config")
	}

	t := &Tracker{
		cfg:     cfg,
		logger:  logger,
		console: os.Stdout,
		index:   newBucketIndex(cfg.Name),
		records: rawmem.NewRecordSlab[Record](cfg.Name+"_records", rawmem.DefaultRecordChunkLen),
		tallies: make(map[string]*TypeTally),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.raw == nil {
		t.raw = rawmem.NewLimitedAllocator(memory.NewGoAllocator(), cfg.MemoryLimit)
	}
	t.logger = t.logger.With().Str("component", "tracker").Str("tracker", cfg.Name).Logger()
	return t, nil
}

// Config returns the configuration the tracker was built with.
func (t *Tracker) Config() Config {
	return t.cfg
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// activate performs the Uninitialized -> Active transition.
func (t *Tracker) activate() {
	if t.state != StateUninitialized {
		return
	}
	t.state = StateActive
	if t.cfg.DumpLeaksToFile {
		if err := os.WriteFile(t.cfg.LeakReportPath, nil, 0o644); err != nil {
			t.logger.Warn().Err(err).Str("path", t.cfg.LeakReportPath).Msg("Failed to truncate leak report file")
		}
	}
	t.logger.Debug().Msg("Tracker active")
}

// Allocate returns a tracked block of size bytes. It panics with an
// exhaustion error when the underlying allocator cannot satisfy the request.
func (t *Tracker) Allocate(size int, kind Kind) []byte {
	b, _, err := t.Register(size, kind)
	if err != nil {
		panic(err)
	}
	return b
}

// TryAllocate is Allocate with the soft failure policy: it returns nil
// instead of panicking.
func (t *Tracker) TryAllocate(size int, kind Kind) []byte {
	b, _, err := t.Register(size, kind)
	if err != nil {
		return nil
	}
	return b
}

// Register obtains a block from the underlying allocator, prepends the
// allocation header and records the block as live. The returned handle can
// be passed to EnrichHandle.
func (t *Tracker) Register(size int, kind Kind) ([]byte, Handle, error) {
	const op = "register"

	t.activate()
	if t.state != StateActive {
		return nil, Handle{}, trackererrors.NewLifecycleError(op, "tracker is "+t.state.String()).
			WithContext("size", size)
	}
	if !kind.valid() {
		return nil, Handle{}, trackererrors.NewConsistencyError(op, fmt.Sprintf("invalid allocation kind %d", kind))
	}
	if size < 0 || size > math.MaxInt-headerSize {
		return nil, Handle{}, t.exhausted(op, size, kind, fmt.Errorf("size %d out of range", size))
	}

	raw, err := t.rawAllocate(blockLen(size))
	if err != nil {
		return nil, Handle{}, t.exhausted(op, size, kind, err)
	}

	writeHeader(raw, AllocationHeader{RawSize: size, Kind: kind})
	b := userSlice(raw, size)
	h := t.register(size, kind, addressOf(b), raw)

	if t.cfg.ShowAllocs {
		t.logger.Info().
			Str("event", "allocation").
			Int("size", size).
			Stringer("kind", kind).
			Str("address", fmt.Sprintf("%#x", h.Address)).
			Msg("Allocation")
	}
	return b, h, nil
}

// rawAllocate asks the underlying allocator for n bytes, converting a panic
// or a short block into an error.
func (t *Tracker) rawAllocate(n int) (raw []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("underlying allocator panicked: %v", r)
		}
	}()
	raw = t.raw.Allocate(n)
	if len(raw) < n {
		if limit := t.raw.Limit(); limit > 0 {
			return nil, fmt.Errorf("memory limit of %d bytes reached", limit)
		}
		return nil, fmt.Errorf("underlying allocator returned %d of %d bytes", len(raw), n)
	}
	return raw[:n], nil
}

func (t *Tracker) exhausted(op string, size int, kind Kind, cause error) error {
	metrics.AllocationFailuresTotal.WithLabelValues(t.cfg.Name).Inc()
	return trackererrors.WrapExhaustionError(cause, op, "failed to acquire memory").
		WithContext("size", size).
		WithContext("kind", kind.String())
}

// register links a new live record for address into its bucket.
func (t *Tracker) register(size int, kind Kind, address uintptr, raw []byte) Handle {
	bucket, _ := t.index.GetOrCreate(size, kind)

	t.nextGen++
	rec := t.records.Get()
	rec.Address = address
	rec.Size = size
	rec.Kind = kind
	rec.File = Unknown
	rec.Line = 0
	rec.TypeName = Unknown
	rec.live = true
	rec.gen = t.nextGen
	rec.block = raw
	bucket.push(rec)
	t.index.track(rec)

	t.recent = rec
	t.recordAllocation(size, kind)

	return Handle{Address: address, rec: rec, gen: rec.gen}
}

// Release stops tracking b and returns its block to the underlying
// allocator. kind must match the kind b was allocated with. A release that
// does not match a live record returns a consistency error, which is fatal.
// Releasing a nil slice is a no-op.
func (t *Tracker) Release(b []byte, kind Kind) error {
	const op = "release"

	if b == nil {
		return nil
	}
	switch t.state {
	case StateUninitialized:
		t.activate()
	case StateShuttingDown, StateTerminated:
		return trackererrors.NewLifecycleError(op, "tracker is "+t.state.String())
	}

	if cap(b) == 0 {
		return t.violation(op, "block has no backing storage", 0, kind)
	}
	// membership first: the bytes in front of a foreign slice may belong to
	// another object or to no object at all
	address := addressOf(b)
	if t.index.Live(address) == nil {
		return t.violation(op, "block is not a live tracked allocation", address, kind)
	}

	hdr, _ := headerOf(b)
	h, magic := readHeader(hdr)
	if magic != magicLive {
		return t.violation(op, "allocation header overwritten", address, kind)
	}
	if h.Kind != kind {
		return t.violation(op, fmt.Sprintf("block allocated as %s released as %s", h.Kind, kind), address, kind)
	}

	bucket := t.index.Find(h.RawSize, kind)
	if bucket == nil {
		return t.violation(op, fmt.Sprintf("no bucket for size %d", h.RawSize), address, kind)
	}
	i, rec := bucket.find(address)
	if rec == nil {
		return t.violation(op, fmt.Sprintf("address not found in bucket of size %d", h.RawSize), address, kind)
	}

	if t.cfg.ShowDeallocs {
		t.logger.Info().
			Str("event", "deallocation").
			Int("size", rec.Size).
			Stringer("kind", kind).
			Str("file", rec.File).
			Int("line", rec.Line).
			Msg("Deallocation")
	}

	bucket.removeAt(i)
	t.unregister(rec)

	markFreed(hdr)
	t.raw.Free(rawOf(hdr, h.RawSize))
	return nil
}

// unregister updates counters and tallies for a record already unlinked
// from its bucket, then returns it to the metadata store.
func (t *Tracker) unregister(rec *Record) {
	if rec.enriched {
		t.untally(rec.TypeName, rec.tallyBytes)
	}
	if t.recent == rec {
		t.recent = nil
	}
	t.index.untrack(rec.Address)
	t.recordRelease(rec.Size, rec.Kind)
	t.records.Put(rec)
}

func (t *Tracker) violation(op, msg string, address uintptr, kind Kind) error {
	metrics.ConsistencyViolationsTotal.WithLabelValues(t.cfg.Name).Inc()
	err := trackererrors.NewConsistencyError(op, msg).
		WithContext("address", fmt.Sprintf("%#x", address)).
		WithContext("kind", kind.String())
	t.logger.Error().
		Str("address", fmt.Sprintf("%#x", address)).
		Stringer("kind", kind).
		Msg("Internal consistency violation: " + msg)
	return err
}

// SizeOf returns the requested size of a live tracked block, read from its header.
func (t *Tracker) SizeOf(b []byte) (int, error) {
	if cap(b) == 0 || t.index.Live(addressOf(b)) == nil {
		return 0, trackererrors.NewConsistencyError("size_of", "block is not a live tracked allocation").
			WithContext("address", fmt.Sprintf("%#x", addressOf(b)))
	}
	hdr, _ := headerOf(b)
	h, _ := readHeader(hdr)
	return h.RawSize, nil
}

// Bucket returns the bucket for (size, kind), or nil if that pair was never
// allocated.
func (t *Tracker) Bucket(size int, kind Kind) *Bucket {
	return t.index.Find(size, kind)
}

// LiveRecords returns a snapshot of every live record, walking each kind
// partition in report order.
func (t *Tracker) LiveRecords() []Record {
	var out []Record
	for _, kind := range Kinds {
		t.index.each(kind, func(b *Bucket) bool {
			out = append(out, b.Records()...)
			return true
		})
	}
	return out
}
