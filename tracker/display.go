package tracker

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// AllocationTotals counts the live allocations listed by DisplayAllocations.
type AllocationTotals struct {
	Single int
	Array  int
}

// Total returns the combined count of both kinds.
func (a AllocationTotals) Total() int {
	return a.Single + a.Array
}

// DisplayAllocations writes a snapshot of the live allocations to the
// console sink. With groupByCount each bucket reads "N allocations of size S",
// otherwise "S: N allocations". showDetail adds one line per record.
func (t *Tracker) DisplayAllocations(groupByCount, showDetail bool) AllocationTotals {
	totals, _ := t.WriteAllocations(t.console, groupByCount, showDetail)
	return totals
}

// WriteAllocations is DisplayAllocations with an explicit sink.
func (t *Tracker) WriteAllocations(w io.Writer, groupByCount, showDetail bool) (AllocationTotals, error) {
	var sb strings.Builder
	var totals AllocationTotals

	for _, kind := range Kinds {
		fmt.Fprintf(&sb, "<<%s allocations>>\n", kindTitle(kind))
		count := 0
		t.index.each(kind, func(b *Bucket) bool {
			n := b.LiveCount()
			if n == 0 {
				return true
			}
			count += n
			if groupByCount {
				fmt.Fprintf(&sb, "\t%d %s of size %d\n", n, plural(n, "allocation"), b.Size)
			} else {
				fmt.Fprintf(&sb, "\t%d: %d %s\n", b.Size, n, plural(n, "allocation"))
			}
			if showDetail {
				for _, r := range b.Records() {
					sb.WriteString("\t\t")
					writeRecordLine(&sb, r)
					sb.WriteByte('\n')
				}
			}
			return true
		})
		if kind == KindSingle {
			totals.Single = count
		} else {
			totals.Array = count
		}
	}
	fmt.Fprintf(&sb, "Total allocations: %d (%d non-array, %d array)\n\n", totals.Total(), totals.Single, totals.Array)

	_, err := io.WriteString(w, sb.String())
	return totals, err
}

// StatRow is one line of the type statistics table.
type StatRow struct {
	TypeName string
	Blocks   int64
	Bytes    int64
	// Percent of the tracker's current memory.
	Percent float64
}

// DisplayStatTable writes the live allocations grouped by resolved type to
// the console sink and returns the rows. Allocations never enriched are
// grouped by size as "unknown type (size: N bytes)".
func (t *Tracker) DisplayStatTable() []StatRow {
	rows := t.StatTable()

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-40s %10s %14s %8s\n", "Type", "Blocks", "Bytes", "% Mem")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-40s %10d %14d %7.2f%%\n", r.TypeName, r.Blocks, r.Bytes, r.Percent)
	}
	sb.WriteByte('\n')
	_, _ = io.WriteString(t.console, sb.String())
	return rows
}

// StatTable computes the rows of DisplayStatTable without writing them.
func (t *Tracker) StatTable() []StatRow {
	var rows []StatRow
	for _, tt := range t.TypeTallies() {
		if tt.Blocks == 0 {
			continue
		}
		rows = append(rows, StatRow{TypeName: tt.TypeName, Blocks: tt.Blocks, Bytes: tt.Bytes})
	}

	unknownBySize := make(map[int]*StatRow)
	var sizes []int
	for _, kind := range Kinds {
		t.index.each(kind, func(b *Bucket) bool {
			for _, r := range b.records {
				if r.enriched {
					continue
				}
				row, ok := unknownBySize[r.Size]
				if !ok {
					row = &StatRow{TypeName: fmt.Sprintf("%s type (size: %d bytes)", Unknown, r.Size)}
					unknownBySize[r.Size] = row
					sizes = append(sizes, r.Size)
				}
				row.Blocks++
				row.Bytes += int64(r.Size)
			}
			return true
		})
	}
	sort.Ints(sizes)
	for _, s := range sizes {
		rows = append(rows, *unknownBySize[s])
	}

	if current := t.stats.CurrentBytes; current > 0 {
		for i := range rows {
			rows[i].Percent = float64(rows[i].Bytes) / float64(current) * 100
		}
	}
	return rows
}

func writeRecordLine(sb *strings.Builder, r Record) {
	fmt.Fprintf(sb, "Address: %#x  File: %s  Line: %d", r.Address, r.File, r.Line)
	if r.TypeName != Unknown {
		fmt.Fprintf(sb, "  Type: %s", r.TypeName)
	}
}

func kindTitle(k Kind) string {
	if k == KindSingle {
		return "Non-array"
	}
	return "Array"
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
