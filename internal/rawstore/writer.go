// Package rawstore implements an append-only JSON-lines journal per
// (exchange, symbol), rotating on a time interval and on UTC day
// rollover.
package rawstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
)

var partFileRe = regexp.MustCompile(`^part_(\d{3})\.jsonl$`)

// Writer owns the current open part file for one (exchange, symbol) pair.
// Never shared across ingestors — only the owning ingestor writes or
// rotates it.
type Writer struct {
	root          string
	exchange      string
	symbol        string
	intervalSec   int

	mu          sync.Mutex
	file        *os.File
	day         time.Time
	partIndex   int
	openedAt    int64
	boundary    int64
}

// New constructs a writer in the unopened state; it opens lazily on the
// first successful Write.
func New(root, exchange, symbol string, intervalSec int) *Writer {
	if intervalSec <= 0 {
		intervalSec = 60
	}
	return &Writer{root: root, exchange: exchange, symbol: symbol, intervalSec: intervalSec}
}

// Write appends one event as a single JSON line, opening or rotating the
// underlying file as needed. I/O errors are logged and the event is
// dropped — the live stream must not stall because of disk faults on one
// symbol.
func (w *Writer) Write(ev model.CanonicalEvent, nowMillis int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpenLocked(nowMillis); err != nil {
		log.Error().Err(err).Str("exchange", w.exchange).Str("symbol", w.symbol).
			Msg("raw writer: open failed, dropping event")
		return
	}

	line, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("raw writer: marshal failed, dropping event")
		return
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		log.Error().Err(err).Str("exchange", w.exchange).Str("symbol", w.symbol).
			Msg("raw writer: write failed, dropping event")
		// Close the handle so the next write's ensureOpenLocked retries
		// with a fresh open.
		_ = w.file.Close()
		w.file = nil
		return
	}
}

// ensureOpenLocked opens a new file if none is open, or rotates if the
// day or the interval boundary has passed. Caller holds w.mu.
func (w *Writer) ensureOpenLocked(nowMillis int64) error {
	day := clock.DayOf(nowMillis)

	switch {
	case w.file == nil:
		return w.openForDayLocked(day, nowMillis)
	case !day.Equal(w.day):
		w.closeLocked()
		return w.openForDayLocked(day, nowMillis)
	case nowMillis >= w.boundary:
		w.closeLocked()
		w.partIndex++
		return w.openPartLocked(day, nowMillis)
	}
	return nil
}

// openForDayLocked discovers the next unused part index for day (scanning
// the directory so rollover resumes correctly even across restarts) and
// opens it.
func (w *Writer) openForDayLocked(day time.Time, nowMillis int64) error {
	dir := clock.RawDir(w.root, w.exchange, w.symbol, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	highest := highestExistingPart(dir)
	w.partIndex = highest + 1
	w.day = day
	return w.openPartLocked(day, nowMillis)
}

func (w *Writer) openPartLocked(day time.Time, nowMillis int64) error {
	dir := clock.RawDir(w.root, w.exchange, w.symbol, day)
	path := clock.RawPartFile(dir, w.partIndex)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w.file = f
	w.day = day
	w.openedAt = nowMillis
	w.boundary = clock.RotationBoundary(nowMillis, w.intervalSec)
	return nil
}

func (w *Writer) closeLocked() {
	if w.file == nil {
		return
	}
	if err := w.file.Sync(); err != nil {
		log.Warn().Err(err).Msg("raw writer: sync on rotation failed")
	}
	if err := w.file.Close(); err != nil {
		log.Warn().Err(err).Msg("raw writer: close on rotation failed")
	}
	w.file = nil
}

// Close is idempotent and guarantees the final partial file is flushed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
	return nil
}

// highestExistingPart scans dir for part_NNN.jsonl files and returns the
// highest NNN found, or 0 if none exist — day rollover resumes from the
// next unused integer.
func highestExistingPart(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partFileRe.FindStringSubmatch(filepath.Base(e.Name()))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

// ListParts returns the sorted part file paths for a given day directory,
// in lexicographic (== numeric, given zero-padding) order — the order
// the Bar Aggregator (C6) must read them in.
func ListParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if partFileRe.MatchString(filepath.Base(e.Name())) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
