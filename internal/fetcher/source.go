package fetcher

import (
	"context"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// Source is the capability set a Scheduled Fetcher key's upstream must
// provide: rows for one key over a half-open UTC time range. A concrete
// Source normalises whatever shape its venue's API returns into
// model.FetchRow; the fetcher itself never understands payload shapes.
type Source interface {
	FetchRange(ctx context.Context, key string, from, to time.Time) ([]model.FetchRow, error)
}
