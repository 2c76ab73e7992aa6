package health

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/parquetio"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// FileCounts summarises today's on-disk footprint for one symbol: raw
// part files and bar rows present. Any directory that doesn't exist yet
// contributes zero rather than an error — a symbol-day with no traffic
// yet must not fail a heartbeat.
type FileCounts struct {
	RawFiles int `json:"raw_files"`
	BarRows  int `json:"bar_rows"`
}

// RawFileCount returns today's part file count for (exchange, symbol).
func RawFileCount(root, exchange, symbol string, day time.Time) int {
	dir := clock.RawDir(root, exchange, symbol, day)
	parts, err := rawstore.ListParts(dir)
	if err != nil {
		return 0
	}
	return len(parts)
}

// BarRowCount returns today's total bar row count for (exchange, symbol)
// across however many partition files exist, tolerating a missing
// directory.
func BarRowCount(root, exchange, symbol string, day time.Time) int {
	dir := clock.ParquetPartitionDir(root, exchange, symbol, day)
	return sumParquetRows[model.BarRecord](dir)
}

// FetcherRowCount returns today's total fetcher row count for one key,
// tolerating a missing directory.
func FetcherRowCount(root, dataset, key string, day time.Time) int {
	dir := clock.FetcherPartitionDir(root, dataset, key, day)
	return sumParquetRows[model.FetchRow](dir)
}

func sumParquetRows[T any](dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	total := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		rows, err := parquetio.ReadRows[T](filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		total += len(rows)
	}
	return total
}

// DiskUsageBytes walks root and sums regular file sizes, tolerating a
// root that doesn't exist yet (a fresh install before the first write).
func DiskUsageBytes(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
