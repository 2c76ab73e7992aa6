// Package fetcher polls an external tabular source at a fixed cadence
// and appends normalised OHLCV rows to a partitioned tree keyed by key,
// independent from the live ingest path.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/parquetio"
)

// RunResult summarises one key's fetch-and-write pass.
type RunResult struct {
	Key        string
	RowsFetched int
	RowsWritten int
	Err        error
}

// Fetcher polls Source for every configured key on a schedule, with
// per-key circuit breaking and a shared rate limiter across all keys.
type Fetcher struct {
	root        string
	dataset     string
	source      Source
	compression string

	limiter  *rate.Limiter
	breakers *breakerRegistry

	mu        sync.Mutex
	lastError map[string]error
}

// New constructs a Fetcher. rps/burst throttle outbound calls across all
// keys combined, grounded on the shared-limiter-per-provider pattern; a
// per-key breaker still isolates one key's failures from the rest.
func New(root, dataset string, source Source, compression string, rps float64, burst int) *Fetcher {
	return &Fetcher{
		root:        root,
		dataset:     dataset,
		source:      source,
		compression: compression,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		breakers:    newBreakerRegistry(),
		lastError:   make(map[string]error),
	}
}

// LastError returns the most recent error recorded for key, or nil if
// its last run succeeded or it has never run.
func (f *Fetcher) LastError(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError[key]
}

func (f *Fetcher) setLastError(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastError[key] = err
}

// RunOnce fetches and writes new rows for every key in keys, for the
// half-open window [from, to). One key's failure is recorded in its
// last-error slot and never aborts the remaining keys.
func (f *Fetcher) RunOnce(ctx context.Context, keys []string, from, to time.Time) []RunResult {
	results := make([]RunResult, 0, len(keys))
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return results
		default:
		}
		results = append(results, f.runKey(ctx, key, from, to))
	}
	return results
}

func (f *Fetcher) runKey(ctx context.Context, key string, from, to time.Time) RunResult {
	if err := f.limiter.Wait(ctx); err != nil {
		f.setLastError(key, err)
		return RunResult{Key: key, Err: err}
	}

	breaker := f.breakers.forKey(key)
	raw, err := breaker.Execute(func() (any, error) {
		return f.source.FetchRange(ctx, key, from, to)
	})
	if err != nil {
		f.setLastError(key, err)
		log.Error().Err(err).Str("key", key).Msg("fetcher: fetch failed")
		return RunResult{Key: key, Err: err}
	}
	rows, _ := raw.([]model.FetchRow)

	existing, err := loadExistingRows(f.root, f.dataset, key, from, to)
	if err != nil {
		f.setLastError(key, err)
		log.Error().Err(err).Str("key", key).Msg("fetcher: failed to read existing partitions")
		return RunResult{Key: key, RowsFetched: len(rows), Err: err}
	}

	newRows := dedupeNewRows(existing, rows)
	if len(newRows) == 0 {
		f.setLastError(key, nil)
		return RunResult{Key: key, RowsFetched: len(rows), RowsWritten: 0}
	}

	byDay := make(map[string][]model.FetchRow)
	for _, r := range newRows {
		day := clock.DateString(clock.DayOf(r.Ts.UnixMilli()))
		byDay[day] = append(byDay[day], r)
	}

	for _, dayRows := range byDay {
		day := clock.DayOf(dayRows[0].Ts.UnixMilli())
		dir := clock.FetcherPartitionDir(f.root, f.dataset, key, day)
		path := parquetio.PartitionFile(dir, uuid.NewString())
		if err := parquetio.WriteRows(path, dayRows, f.compression); err != nil {
			f.setLastError(key, err)
			log.Error().Err(err).Str("key", key).Msg("fetcher: failed to write partition")
			return RunResult{Key: key, RowsFetched: len(rows), Err: err}
		}
	}

	f.setLastError(key, nil)
	return RunResult{Key: key, RowsFetched: len(rows), RowsWritten: len(newRows)}
}

// Run drives the startup backfill and then the periodic schedule until
// ctx is cancelled. The stop check happens between keys, never mid-key.
func (f *Fetcher) Run(ctx context.Context, keys []string, scheduleEvery time.Duration, startupLookback, runtimeLookback time.Duration) {
	now := time.Now().UTC()
	f.RunOnce(ctx, keys, now.Add(-startupLookback), now)

	ticker := time.NewTicker(scheduleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			results := f.RunOnce(ctx, keys, now.Add(-runtimeLookback), now)
			for _, r := range results {
				if r.Err != nil {
					log.Warn().Err(r.Err).Str("key", r.Key).Msg("fetcher: periodic run failed for key")
				}
			}
		}
	}
}
