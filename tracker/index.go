package tracker

import (
	"github.com/23skdu/memtracer/internal/memory"
)

type bucketKey struct {
	size int
	kind Kind
}

// bucketIndex maps (size, kind) to its bucket. Each kind partition also keeps
// its buckets in first-seen order so reports read as a history of sizes.
//
// live holds the address of every live record. Memory in front of an address
// is only read as a header once the address is found there.
type bucketIndex struct {
	byKey map[bucketKey]*Bucket
	order [len(Kinds)][]*Bucket
	live  map[uintptr]*Record
	slab  *memory.RecordSlab[Bucket]
}

func newBucketIndex(name string) *bucketIndex {
	return &bucketIndex{
		byKey: make(map[bucketKey]*Bucket),
		live:  make(map[uintptr]*Record),
		slab:  memory.NewRecordSlab[Bucket](name+"_buckets", 64),
	}
}

// Find returns the bucket for (size, kind), or nil.
func (ix *bucketIndex) Find(size int, kind Kind) *Bucket {
	return ix.byKey[bucketKey{size: size, kind: kind}]
}

// GetOrCreate returns the bucket for (size, kind), creating it on first use.
func (ix *bucketIndex) GetOrCreate(size int, kind Kind) (*Bucket, bool) {
	key := bucketKey{size: size, kind: kind}
	if b, ok := ix.byKey[key]; ok {
		return b, false
	}
	b := ix.slab.Get()
	b.Size = size
	b.Kind = kind
	ix.byKey[key] = b
	ix.order[kind] = append(ix.order[kind], b)
	return b, true
}

// Live returns the live record at address, or nil.
func (ix *bucketIndex) Live(address uintptr) *Record {
	return ix.live[address]
}

func (ix *bucketIndex) track(r *Record) {
	ix.live[r.Address] = r
}

func (ix *bucketIndex) untrack(address uintptr) {
	delete(ix.live, address)
}

// each visits the buckets of a kind, most recently created first, until fn
// returns false.
func (ix *bucketIndex) each(kind Kind, fn func(*Bucket) bool) {
	buckets := ix.order[kind]
	for i := len(buckets) - 1; i >= 0; i-- {
		if !fn(buckets[i]) {
			return
		}
	}
}

// Len returns the number of buckets of a kind, empty ones included.
func (ix *bucketIndex) Len(kind Kind) int {
	return len(ix.order[kind])
}

// reset returns every bucket to the slab and drops the slab's storage.
func (ix *bucketIndex) reset() {
	for k := range ix.order {
		for _, b := range ix.order[k] {
			ix.slab.Put(b)
		}
		ix.order[k] = nil
	}
	clear(ix.byKey)
	clear(ix.live)
	ix.slab.Reset()
}
