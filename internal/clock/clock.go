// Package clock centralizes UTC time reasoning and the on-disk directory
// layout so the rest of the module never recomputes date math or path
// segments independently.
package clock

import (
	"fmt"
	"path/filepath"
	"time"
)

// NowMillis returns the current time as Unix milliseconds, UTC.
func NowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// DayOf returns the UTC calendar date for a ms-since-epoch timestamp.
func DayOf(tsMillis int64) time.Time {
	return time.UnixMilli(tsMillis).UTC().Truncate(24 * time.Hour)
}

// DateString formats a UTC day as YYYY-MM-DD.
func DateString(day time.Time) string {
	return day.UTC().Format("2006-01-02")
}

// SameDay reports whether two ms timestamps fall on the same UTC date.
func SameDay(aMillis, bMillis int64) bool {
	return DayOf(aMillis).Equal(DayOf(bMillis))
}

// RotationBoundary returns the next multiple of intervalSec past openedAt,
// in ms since epoch. openedAt is the ms timestamp the current file was
// opened at.
func RotationBoundary(openedAtMillis int64, intervalSec int) int64 {
	intervalMillis := int64(intervalSec) * 1000
	if intervalMillis <= 0 {
		intervalMillis = 60_000
	}
	return ((openedAtMillis / intervalMillis) + 1) * intervalMillis
}

// BucketStart floors a ms timestamp down to the containing aggregation
// bucket start, in whole UTC seconds since epoch, for the given interval
// in seconds (canonical bar aggregation uses interval=1).
func BucketStart(tsMillis int64, intervalSec int) int64 {
	if intervalSec <= 0 {
		intervalSec = 1
	}
	sec := tsMillis / 1000
	return (sec / int64(intervalSec)) * int64(intervalSec)
}

// RawDir returns <root>/raw/<exchange>/<symbol>/<YYYY-MM-DD>.
func RawDir(root, exchange, symbol string, day time.Time) string {
	return filepath.Join(root, "raw", exchange, symbol, DateString(day))
}

// RawPartFile returns <dir>/part_NNN.jsonl for a 1-based part index.
func RawPartFile(dir string, partIndex int) string {
	return filepath.Join(dir, fmt.Sprintf("part_%03d.jsonl", partIndex))
}

// ParquetPartitionDir returns
// <root>/parquet/<exchange>/<symbol>/year=Y/month=M/day=D.
func ParquetPartitionDir(root, exchange, symbol string, day time.Time) string {
	return filepath.Join(root, "parquet", exchange, symbol,
		fmt.Sprintf("year=%04d", day.Year()),
		fmt.Sprintf("month=%02d", int(day.Month())),
		fmt.Sprintf("day=%02d", day.Day()),
	)
}

// FetcherPartitionDir returns <root>/<dataset>/minute/<key>/year=Y/month=M/day=D.
func FetcherPartitionDir(root, dataset, key string, day time.Time) string {
	return filepath.Join(root, dataset, "minute", key,
		fmt.Sprintf("year=%04d", day.Year()),
		fmt.Sprintf("month=%02d", int(day.Month())),
		fmt.Sprintf("day=%02d", day.Day()),
	)
}

// HealthHeartbeatPath returns <root>/logs/health/heartbeat.json.
func HealthHeartbeatPath(root string) string {
	return filepath.Join(root, "logs", "health", "heartbeat.json")
}

func HealthReportPath(root string) string {
	return filepath.Join(root, "reports", "health.txt")
}
