package barengine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/parquetio"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// RunSymbolDay loads one symbol's raw day directory, aggregates it into
// bars, and writes the bars as Parquet partitions under root. It is safe
// to call repeatedly on the same day: each call is a pure function of the
// raw input, and reruns simply add another partition file for readers to
// deduplicate by (symbol, window_start).
func RunSymbolDay(root, exchange, symbol, rawDir string, intervalSec int, compression string) (RunResult, error) {
	events, skipped, err := Load(rawDir)
	if err != nil {
		return RunResult{}, fmt.Errorf("load %s: %w", rawDir, err)
	}

	bars, result := Aggregate(symbol, events, intervalSec)
	result.SkippedLines = skipped

	if len(bars) == 0 {
		log.Info().Str("exchange", exchange).Str("symbol", symbol).Msg("barengine: no events, no bars written")
		return result, nil
	}

	byDay := make(map[string][]int)
	for i, bar := range bars {
		day := clock.DateString(clock.DayOf(bar.WindowStart.UnixMilli()))
		byDay[day] = append(byDay[day], i)
	}

	for _, idxs := range byDay {
		day := clock.DayOf(bars[idxs[0]].WindowStart.UnixMilli())
		dir := clock.ParquetPartitionDir(root, exchange, symbol, day)
		rows := make([]model.BarRecord, len(idxs))
		for j, idx := range idxs {
			rows[j] = bars[idx]
		}
		path := parquetio.PartitionFile(dir, uuid.NewString())
		if err := parquetio.WriteRows(path, rows, compression); err != nil {
			return result, fmt.Errorf("write partition %s: %w", path, err)
		}
	}

	if parts, err := rawstore.ListParts(rawDir); err != nil {
		log.Warn().Err(err).Str("raw_dir", rawDir).Msg("barengine: failed to list raw parts for compaction marker")
	} else if err := rawstore.WriteCompactionMarker(rawDir, len(parts), time.Now()); err != nil {
		log.Warn().Err(err).Str("raw_dir", rawDir).Msg("barengine: failed to write compaction marker")
	}

	log.Info().Str("exchange", exchange).Str("symbol", symbol).
		Int("events_read", result.EventsRead).
		Int("buckets_written", result.BucketsWritten).
		Int("gaps_filled", result.GapsFilled).
		Int("skipped_lines", result.SkippedLines).
		Msg("barengine: run complete")

	return result, nil
}
