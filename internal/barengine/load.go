// Package barengine turns one symbol-day of raw journaled events into
// one-second OHLCV+quote bars and writes them as columnar partitions.
package barengine

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// Load reads every part file under dir in lexicographic (== chronological,
// given zero-padded numbering) order, skipping lines that don't parse as
// JSON. It never returns a parse error itself — a malformed line is a
// per-line skip, not a load failure.
func Load(dir string) ([]model.CanonicalEvent, int, error) {
	parts, err := rawstore.ListParts(dir)
	if err != nil {
		return nil, 0, err
	}

	var events []model.CanonicalEvent
	skipped := 0
	for _, path := range parts {
		f, err := os.Open(path)
		if err != nil {
			return nil, skipped, err
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev model.CanonicalEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				skipped++
				log.Debug().Err(err).Str("file", path).Msg("barengine: skipping unparsable line")
				continue
			}
			events = append(events, ev)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, skipped, err
		}
	}
	return events, skipped, nil
}
