package fetcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/parquetio"
)

// loadExistingRows reads every already-written row for key across the
// UTC days spanned by [from, to], across however many partition files
// exist per day. Missing day directories are simply empty, not errors —
// the very first run for a brand new key has nothing on disk yet.
func loadExistingRows(root, dataset, key string, from, to time.Time) ([]model.FetchRow, error) {
	var rows []model.FetchRow
	for day := clock.DayOf(from.UnixMilli()); !day.After(to); day = day.AddDate(0, 0, 1) {
		dir := clock.FetcherPartitionDir(root, dataset, key, day)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
				continue
			}
			r, err := parquetio.ReadRows[model.FetchRow](filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			rows = append(rows, r...)
		}
	}
	return rows, nil
}
