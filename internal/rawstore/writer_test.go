package rawstore

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
)

func sampleEvent(symbol string) model.CanonicalEvent {
	price, _ := model.ParseDecimal("1.0")
	qty, _ := model.ParseDecimal("1.0")
	return model.CanonicalEvent{
		Exchange:   "kraken",
		Symbol:     symbol,
		StreamKind: model.StreamTrade,
		Price:      price,
		Qty:        qty,
		Side:       model.SideBuy,
	}
}

// Rotation with write_interval_sec=1: two writes more than a second
// apart produce at least two part files.
func TestRotationByInterval(t *testing.T) {
	root := t.TempDir()
	w := New(root, "kraken", "ADAUSDT", 1)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	w.Write(sampleEvent("ADAUSDT"), t0)
	w.Write(sampleEvent("ADAUSDT"), t0+1100)
	require.NoError(t, w.Close())

	dir := clock.RawDir(root, "kraken", "ADAUSDT", clock.DayOf(t0))
	parts, err := ListParts(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(parts), 2)
	assert.Equal(t, filepath.Join(dir, "part_001.jsonl"), parts[0])
}

// Day rollover resets to part_001 under the new date and continues
// numbering from the highest existing part on the old date.
func TestDayRollover(t *testing.T) {
	root := t.TempDir()

	day1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	dir1 := clock.RawDir(root, "kraken", "ADAUSDT", clock.DayOf(day1))
	require.NoError(t, os.MkdirAll(dir1, 0o755))
	for _, n := range []string{"part_001.jsonl", "part_002.jsonl", "part_003.jsonl"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir1, n), []byte(""), 0o644))
	}

	w := New(root, "kraken", "ADAUSDT", 60)
	w.Write(sampleEvent("ADAUSDT"), day1)

	day2 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	w.Write(sampleEvent("ADAUSDT"), day2)
	require.NoError(t, w.Close())

	dir2 := clock.RawDir(root, "kraken", "ADAUSDT", clock.DayOf(day2))
	parts, err := ListParts(dir2)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, filepath.Join(dir2, "part_001.jsonl"), parts[0])

	parts1, err := ListParts(dir1)
	require.NoError(t, err)
	assert.Len(t, parts1, 4) // 3 pre-existing + 1 written before rollover
}

func TestWriteIsOneJSONLinePerEvent(t *testing.T) {
	root := t.TempDir()
	w := New(root, "binance", "BTCUSDT", 60)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	w.Write(sampleEvent("BTCUSDT"), t0)
	w.Write(sampleEvent("BTCUSDT"), t0+10)
	require.NoError(t, w.Close())

	dir := clock.RawDir(root, "binance", "BTCUSDT", clock.DayOf(t0))
	parts, err := ListParts(dir)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	f, err := os.Open(parts[0])
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
		assert.NotEmpty(t, scanner.Text())
	}
	assert.Equal(t, 2, lines)
}

func TestCloseIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w := New(root, "kraken", "ETHUSDT", 60)
	w.Write(sampleEvent("ETHUSDT"), time.Now().UTC().UnixMilli())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestPartNumberingIsThreeDigitZeroPadded(t *testing.T) {
	root := t.TempDir()
	w := New(root, "kraken", "SOLUSDT", 60)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	w.Write(sampleEvent("SOLUSDT"), t0)
	require.NoError(t, w.Close())

	dir := clock.RawDir(root, "kraken", "SOLUSDT", clock.DayOf(t0))
	parts, err := ListParts(dir)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "part_001.jsonl", filepath.Base(parts[0]))
}
