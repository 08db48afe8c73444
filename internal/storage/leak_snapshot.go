package storage

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/memtracer/internal/metrics"
)

// LeakRow represents one leaked allocation for Parquet serialization
type LeakRow struct {
	Kind    string `parquet:"kind"`
	Size    int64  `parquet:"size"`
	Address uint64 `parquet:"address"`
	File    string `parquet:"file"`
	Line    int32  `parquet:"line"`
	Type    string `parquet:"type"`
}

// WriteLeakSnapshot writes rows to path, replacing any previous snapshot.
func WriteLeakSnapshot(path string, rows []LeakRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create leak snapshot: %w", err)
	}
	if err := writeLeakParquet(f, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write leak snapshot: %w", err)
	}
	return f.Close()
}

// writeLeakParquet writes rows with a single parquet.Writer so the file has one footer.
func writeLeakParquet(w io.Writer, rows []LeakRow) error {
	start := time.Now()
	pw := parquet.NewGenericWriter[LeakRow](w, parquet.Compression(&parquet.Zstd))

	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			_ = pw.Close()
			return err
		}
	}

	err := pw.Close()
	if err == nil {
		metrics.LeakSnapshotWriteDurationSeconds.Observe(time.Since(start).Seconds())
	}
	return err
}

// ReadLeakSnapshot reads every row of a snapshot written by WriteLeakSnapshot.
func ReadLeakSnapshot(path string) ([]LeakRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, err
	}

	pr := parquet.NewGenericReader[LeakRow](pf)
	defer func() { _ = pr.Close() }()

	rows := make([]LeakRow, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return rows[:n], nil
}
