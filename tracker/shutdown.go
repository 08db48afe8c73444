package tracker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/23skdu/memtracer/internal/metrics"
	"github.com/23skdu/memtracer/internal/storage"
)

// LeakGroup is the set of allocations still live in one bucket at shutdown.
type LeakGroup struct {
	Size    int
	Kind    Kind
	Records []Record
}

// LeakReport is the result of the shutdown sweep.
type LeakReport struct {
	Groups     []LeakGroup
	TotalLeaks int
	TotalBytes int64
}

// Write renders the report in its text form.
func (r LeakReport) Write(w io.Writer) error {
	var sb strings.Builder
	for _, g := range r.Groups {
		n := len(g.Records)
		fmt.Fprintf(&sb, "%d memory %s detected of size %d and kind %s\n", n, plural(n, "leak"), g.Size, g.Kind)
		for _, rec := range g.Records {
			fmt.Fprintf(&sb, "\tAddress: %#x  File: %s  Line: %d  Type: %s\n", rec.Address, rec.File, rec.Line, rec.TypeName)
		}
	}
	fmt.Fprintf(&sb, "Total number of leaks found: %d\n", r.TotalLeaks)
	fmt.Fprintf(&sb, "Total memory leaked: %d bytes (%.3f kilobytes / %.6f megabytes)\n",
		r.TotalBytes, float64(r.TotalBytes)/1024, float64(r.TotalBytes)/(1024*1024))
	_, err := io.WriteString(w, sb.String())
	return err
}

// rows flattens the report for the Parquet snapshot.
func (r LeakReport) rows() []storage.LeakRow {
	rows := make([]storage.LeakRow, 0, r.TotalLeaks)
	for _, g := range r.Groups {
		for _, rec := range g.Records {
			rows = append(rows, storage.LeakRow{
				Kind:    g.Kind.String(),
				Size:    int64(g.Size),
				Address: uint64(rec.Address),
				File:    rec.File,
				Line:    int32(rec.Line),
				Type:    rec.TypeName,
			})
		}
	}
	return rows
}

// Close sweeps the remaining live allocations into a LeakReport, writes it to
// the console sink and, when configured, to the leak report file and the
// Parquet snapshot. All tracker metadata is then discarded. Leaked blocks are
// not returned to the underlying allocator.
//
// Close is idempotent: later calls return the first report and no error.
// Errors from the report sinks are joined; the tracker terminates regardless.
func (t *Tracker) Close() (LeakReport, error) {
	if t.state == StateTerminated && t.final != nil {
		return *t.final, nil
	}
	t.activate()
	t.state = StateShuttingDown

	report := t.collectLeaks()
	errs := t.writeReport(report)

	metrics.LeakedBlocks.WithLabelValues(t.cfg.Name).Set(float64(report.TotalLeaks))
	metrics.LeakedBytes.WithLabelValues(t.cfg.Name).Set(float64(report.TotalBytes))
	if report.TotalLeaks > 0 {
		t.logger.Warn().
			Int("leaks", report.TotalLeaks).
			Int64("bytes", report.TotalBytes).
			Msg("Memory leaks detected at shutdown")
	} else {
		t.logger.Debug().Msg("No memory leaks detected")
	}

	t.teardown()
	t.final = &report
	t.state = StateTerminated
	return report, errors.Join(errs...)
}

func (t *Tracker) collectLeaks() LeakReport {
	var report LeakReport
	for _, kind := range Kinds {
		t.index.each(kind, func(b *Bucket) bool {
			if b.LiveCount() == 0 {
				return true
			}
			report.Groups = append(report.Groups, LeakGroup{
				Size:    b.Size,
				Kind:    b.Kind,
				Records: b.Records(),
			})
			report.TotalLeaks += b.LiveCount()
			return true
		})
	}
	report.TotalBytes = t.stats.CurrentBytes
	return report
}

func (t *Tracker) writeReport(report LeakReport) []error {
	var errs []error
	if err := report.Write(t.console); err != nil {
		errs = append(errs, fmt.Errorf("write leak report to console: %w", err))
	}

	if t.cfg.DumpLeaksToFile {
		if err := appendReport(t.cfg.LeakReportPath, report); err != nil {
			t.logger.Error().Err(err).Str("path", t.cfg.LeakReportPath).Msg("Failed to write leak report file")
			errs = append(errs, err)
		}
	}

	if t.cfg.LeakSnapshotPath != "" {
		if err := storage.WriteLeakSnapshot(t.cfg.LeakSnapshotPath, report.rows()); err != nil {
			t.logger.Error().Err(err).Str("path", t.cfg.LeakSnapshotPath).Msg("Failed to write leak snapshot")
			errs = append(errs, err)
		}
	}
	return errs
}

func appendReport(path string, report LeakReport) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open leak report file: %w", err)
	}
	if err := report.Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write leak report file: %w", err)
	}
	return f.Close()
}

// teardown discards every record and bucket. Counters keep their final values.
func (t *Tracker) teardown() {
	for _, kind := range Kinds {
		t.index.each(kind, func(b *Bucket) bool {
			for i, rec := range b.records {
				t.records.Put(rec)
				b.records[i] = nil
			}
			b.records = nil
			return true
		})
	}
	t.records.Reset()
	t.index.reset()
	t.recent = nil
	clear(t.tallies)
	t.tallyOrder = nil
}
