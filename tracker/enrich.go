package tracker

import (
	"fmt"

	trackererrors "github.com/23skdu/memtracer/internal/errors"
	"github.com/23skdu/memtracer/internal/metrics"
)

// TypeTally aggregates the live allocations sharing one resolved type name.
type TypeTally struct {
	TypeName string
	Blocks   int64
	Bytes    int64
}

// Enrichment resolution paths, used as metric labels.
const (
	pathHandle = "handle"
	pathCursor = "cursor"
	pathSearch = "search"
	pathMiss   = "miss"
)

// Enrich attaches a source location and a resolved type name to the live
// allocation at address. The most recently registered record is tried
// first; otherwise every bucket is searched, starting with buckets of
// objectSize when it is positive. A miss is a silent no-op and reports
// false. A record is enriched at most once.
//
// An empty typeName is recorded as Unknown and tallied under it.
func (t *Tracker) Enrich(address uintptr, file string, line int, typeName string, objectSize int) bool {
	if t.state != StateActive {
		return false
	}
	rec, path := t.lookup(address, objectSize)
	if rec == nil {
		metrics.EnrichmentsTotal.WithLabelValues(t.cfg.Name, pathMiss).Inc()
		addr := fmt.Sprintf("%#x", address)
		t.logger.Debug().
			Err(trackererrors.NewEnrichmentError("enrich", "target not found").WithContext("address", addr)).
			Str("address", addr).
			Str("file", file).
			Int("line", line).
			Msg("Enrichment target not found")
		return false
	}
	return t.apply(rec, path, file, line, typeName, objectSize)
}

// EnrichHandle is Enrich for a registration handle. It never searches.
func (t *Tracker) EnrichHandle(h Handle, file string, line int, typeName string, objectSize int) bool {
	if t.state != StateActive || !h.valid() {
		metrics.EnrichmentsTotal.WithLabelValues(t.cfg.Name, pathMiss).Inc()
		return false
	}
	return t.apply(h.rec, pathHandle, file, line, typeName, objectSize)
}

func (t *Tracker) lookup(address uintptr, objectSize int) (*Record, string) {
	if r := t.recent; r != nil && r.live && r.Address == address {
		return r, pathCursor
	}

	if objectSize > 0 {
		for _, kind := range Kinds {
			if b := t.index.Find(objectSize, kind); b != nil {
				if _, r := b.find(address); r != nil {
					return r, pathSearch
				}
			}
		}
	}

	var found *Record
	for _, kind := range Kinds {
		t.index.each(kind, func(b *Bucket) bool {
			_, found = b.find(address)
			return found == nil
		})
		if found != nil {
			return found, pathSearch
		}
	}
	return nil, pathMiss
}

func (t *Tracker) apply(rec *Record, path, file string, line int, typeName string, objectSize int) bool {
	if rec.enriched {
		t.logger.Debug().
			Str("address", fmt.Sprintf("%#x", rec.Address)).
			Msg("Record already enriched")
		return false
	}
	if file == "" {
		file = Unknown
		line = 0
	}
	if typeName == "" {
		typeName = Unknown
	}
	if objectSize <= 0 {
		objectSize = rec.Size
	}

	rec.File = file
	rec.Line = line
	rec.TypeName = typeName
	rec.tallyBytes = objectSize
	rec.enriched = true
	t.tally(typeName, objectSize)

	metrics.EnrichmentsTotal.WithLabelValues(t.cfg.Name, path).Inc()
	if t.cfg.ShowAllocs {
		t.logger.Info().
			Str("event", "allocation_trace").
			Str("type", typeName).
			Str("file", file).
			Int("line", line).
			Msg("Allocation information trace")
	}
	return true
}

func (t *Tracker) tally(typeName string, bytes int) {
	tt, ok := t.tallies[typeName]
	if !ok {
		tt = &TypeTally{TypeName: typeName}
		t.tallies[typeName] = tt
		t.tallyOrder = append(t.tallyOrder, typeName)
	}
	tt.Blocks++
	tt.Bytes += int64(bytes)
}

func (t *Tracker) untally(typeName string, bytes int) {
	if tt, ok := t.tallies[typeName]; ok {
		tt.Blocks--
		tt.Bytes -= int64(bytes)
	}
}

// TypeTally returns the tally for a type name.
func (t *Tracker) TypeTally(typeName string) (TypeTally, bool) {
	tt, ok := t.tallies[typeName]
	if !ok {
		return TypeTally{}, false
	}
	return *tt, true
}

// TypeTallies returns every tally in first-seen order, including tallies
// whose allocations have all been released.
func (t *Tracker) TypeTallies() []TypeTally {
	out := make([]TypeTally, 0, len(t.tallyOrder))
	for _, name := range t.tallyOrder {
		out = append(out, *t.tallies[name])
	}
	return out
}
