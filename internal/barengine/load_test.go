package barengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

func TestLoadSkipsUnparsableLinesAndCountsThem(t *testing.T) {
	dir := t.TempDir()
	w := rawstore.New(dir, "binance", "BTCUSDT", 60)
	t0 := int64(1_700_000_000_000)
	w.Write(trade(t0, "1.0", "1.0"), t0)
	w.Write(trade(t0+100, "1.1", "1.0"), t0+100)
	require.NoError(t, w.Close())

	rawDir := filepath.Join(dir, "raw", "binance", "BTCUSDT")
	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	dayDir := filepath.Join(rawDir, entries[0].Name())

	parts, err := rawstore.ListParts(dayDir)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	f, err := os.OpenFile(parts[0], os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, skipped, err := Load(dayDir)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, skipped)
}

func TestLoadEmptyDirReturnsNoEvents(t *testing.T) {
	dir := t.TempDir()
	events, skipped, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, skipped)
}
