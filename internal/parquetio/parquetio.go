// Package parquetio is the single place that touches
// github.com/parquet-go/parquet-go, shared by the Bar Aggregator and the
// Scheduled Fetcher so both write columnar partitions the same way.
package parquetio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

func compressionCodec(name string) compress.Codec {
	switch name {
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "lz4":
		return &parquet.Lz4Raw
	case "brotli":
		return &parquet.Brotli
	case "uncompressed", "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}

// WriteRows writes rows to a new Parquet file at path, creating parent
// directories as needed. A nil or empty rows slice is a no-op: callers
// decide whether an empty partition is worth writing at all.
func WriteRows[T any](path string, rows []T, compression string) error {
	if len(rows) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[T](f, parquet.Compression(compressionCodec(compression)))
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("write rows to %s: %w", path, err)
	}
	return w.Close()
}

// ReadRows reads every row from an existing Parquet file.
func ReadRows[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[T](f)
	defer r.Close()

	rows := make([]T, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read rows from %s: %w", path, err)
	}
	return rows[:n], nil
}

// PartitionFile returns <dir>/part-<suffix>.parquet, the naming scheme
// both the Bar Aggregator and the Scheduled Fetcher use for one written
// partition.
func PartitionFile(dir, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf("part-%s.parquet", suffix))
}
