package tracker

// Unknown marks a source file or type name that was never supplied.
const Unknown = "unknown"

// Record is the metadata kept for one outstanding allocation.
type Record struct {
	Address  uintptr
	Size     int
	Kind     Kind
	File     string
	Line     int
	TypeName string

	enriched   bool
	tallyBytes int
	live       bool
	gen        uint64
	// block keeps the raw allocation reachable until release so its address
	// cannot be handed out again while this record exists.
	block []byte
}

// Enriched reports whether source location and type were attached.
func (r *Record) Enriched() bool {
	return r.enriched
}

// Handle identifies one registration. It stays valid until the allocation is
// released, and lets enrichment skip the most-recent cursor and the search.
type Handle struct {
	Address uintptr
	rec     *Record
	gen     uint64
}

func (h Handle) valid() bool {
	return h.rec != nil && h.rec.live && h.rec.gen == h.gen
}

// Bucket holds every live allocation sharing one (size, kind) pair. Buckets
// are created lazily and persist until shutdown even when empty.
type Bucket struct {
	Size int
	Kind Kind
	// records is in registration order; readers walk it newest first.
	records []*Record
}

// LiveCount returns the number of live allocations in the bucket.
func (b *Bucket) LiveCount() int {
	return len(b.records)
}

// Records returns a snapshot of the bucket's live records, newest first.
func (b *Bucket) Records() []Record {
	out := make([]Record, 0, len(b.records))
	for i := len(b.records) - 1; i >= 0; i-- {
		r := *b.records[i]
		r.block = nil
		out = append(out, r)
	}
	return out
}

func (b *Bucket) push(r *Record) {
	b.records = append(b.records, r)
}

// find linear-scans the bucket for address, newest first.
func (b *Bucket) find(address uintptr) (int, *Record) {
	for i := len(b.records) - 1; i >= 0; i-- {
		if b.records[i].Address == address {
			return i, b.records[i]
		}
	}
	return -1, nil
}

func (b *Bucket) removeAt(i int) {
	copy(b.records[i:], b.records[i+1:])
	b.records[len(b.records)-1] = nil
	b.records = b.records[:len(b.records)-1]
}
