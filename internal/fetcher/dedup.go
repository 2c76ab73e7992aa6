package fetcher

import "github.com/tradewithmeai/cryptolake/internal/model"

// dedupeNewRows keeps only the rows in newRows whose timestamp is not
// already present in existing, and collapses duplicate timestamps within
// newRows itself by keeping the last occurrence — the most recently
// fetched value for that minute wins. Rows whose timestamp already
// exists on disk are never rewritten, even if the freshly fetched value
// differs: a later run corrects history by waiting for it to fall out of
// the lookback window, not by overwriting in place.
func dedupeNewRows(existing, newRows []model.FetchRow) []model.FetchRow {
	existingTs := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		existingTs[r.Ts.UTC().UnixMilli()] = struct{}{}
	}

	latest := make(map[int64]model.FetchRow, len(newRows))
	order := make([]int64, 0, len(newRows))
	for _, r := range newRows {
		ts := r.Ts.UTC().UnixMilli()
		if _, ok := existingTs[ts]; ok {
			continue
		}
		if _, seen := latest[ts]; !seen {
			order = append(order, ts)
		}
		latest[ts] = r
	}

	out := make([]model.FetchRow, 0, len(order))
	for _, ts := range order {
		out = append(out, latest[ts])
	}
	return out
}
