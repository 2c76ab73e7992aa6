package rawstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CompactionMarker records, per symbol-day, that the Bar Aggregator has
// produced bars for that raw directory and when. It is purely advisory:
// the aggregator's rerun semantics never depend on it, but the health
// reporter and any future retention sweep can use it to tell "not yet
// aggregated" apart from "aggregated, raw can be archived".
type CompactionMarker struct {
	PartsCompacted int       `json:"parts_compacted"`
	CompactedAt    time.Time `json:"compacted_at"`
}

func markerPath(dir string) string {
	return filepath.Join(dir, ".compacted")
}

// WriteCompactionMarker writes the marker for dir, overwriting any
// previous one.
func WriteCompactionMarker(dir string, partsCompacted int, at time.Time) error {
	m := CompactionMarker{PartsCompacted: partsCompacted, CompactedAt: at.UTC()}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal compaction marker: %w", err)
	}
	if err := os.WriteFile(markerPath(dir), b, 0o644); err != nil {
		return fmt.Errorf("write compaction marker: %w", err)
	}
	return nil
}

// ReadCompactionMarker returns (marker, true) if dir has been marked
// compacted, or (zero, false) if not — including when dir doesn't exist.
func ReadCompactionMarker(dir string) (CompactionMarker, bool) {
	b, err := os.ReadFile(markerPath(dir))
	if err != nil {
		return CompactionMarker{}, false
	}
	var m CompactionMarker
	if err := json.Unmarshal(b, &m); err != nil {
		return CompactionMarker{}, false
	}
	return m, true
}
