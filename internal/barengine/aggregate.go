package barengine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
)

// RunResult summarises one aggregator run, restoring the per-run counters
// the original transformer logged (events read, buckets written, gaps
// filled, lines skipped at load time) that a plain bar-count would lose.
type RunResult struct {
	EventsRead     int
	BucketsWritten int
	GapsFilled     int
	SkippedLines   int
}

type tradeAgg struct {
	open, high, low, close  decimal.Decimal
	volumeBase, volumeQuote decimal.Decimal
	tradeCount              int64
}

type quoteAgg struct {
	bid, ask decimal.Decimal
}

// Aggregate implements the bucket/merge/gap-fill algorithm: bucket by
// whole UTC seconds, aggregate trades and quotes independently, outer-join
// on bucket key, then materialise every second in [t_min, t_max] with
// forward-fill for seconds missing trade or quote data.
func Aggregate(symbol string, events []model.CanonicalEvent, intervalSec int) ([]model.BarRecord, RunResult) {
	result := RunResult{EventsRead: len(events)}
	if intervalSec <= 0 {
		intervalSec = 1
	}

	trades := make([]model.CanonicalEvent, 0, len(events))
	quotes := make([]model.CanonicalEvent, 0, len(events))
	for _, ev := range events {
		switch ev.StreamKind {
		case model.StreamTrade:
			trades = append(trades, ev)
		case model.StreamBookTicker:
			quotes = append(quotes, ev)
		}
	}

	sort.SliceStable(trades, func(i, j int) bool { return trades[i].TsEvent < trades[j].TsEvent })
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].TsEvent < quotes[j].TsEvent })

	tradeBuckets := make(map[int64]*tradeAgg)
	for _, ev := range trades {
		if !ev.Price.Valid || !ev.Qty.Valid {
			continue
		}
		bucket := clock.BucketStart(ev.TsEvent, intervalSec)
		a, ok := tradeBuckets[bucket]
		if !ok {
			a = &tradeAgg{open: ev.Price.Value, high: ev.Price.Value, low: ev.Price.Value}
			tradeBuckets[bucket] = a
		}
		a.close = ev.Price.Value
		if ev.Price.Value.GreaterThan(a.high) {
			a.high = ev.Price.Value
		}
		if ev.Price.Value.LessThan(a.low) {
			a.low = ev.Price.Value
		}
		a.volumeBase = a.volumeBase.Add(ev.Qty.Value)
		a.volumeQuote = a.volumeQuote.Add(ev.Price.Value.Mul(ev.Qty.Value))
		a.tradeCount++
	}

	quoteBuckets := make(map[int64]*quoteAgg)
	for _, ev := range quotes {
		if !ev.Bid.Valid || !ev.Ask.Valid {
			continue
		}
		bucket := clock.BucketStart(ev.TsEvent, intervalSec)
		quoteBuckets[bucket] = &quoteAgg{bid: ev.Bid.Value, ask: ev.Ask.Value}
	}

	if len(tradeBuckets) == 0 && len(quoteBuckets) == 0 {
		return nil, result
	}

	var tMin, tMax int64
	first := true
	for b := range tradeBuckets {
		if first || b < tMin {
			tMin = b
		}
		if first || b > tMax {
			tMax = b
		}
		first = false
	}
	for b := range quoteBuckets {
		if first || b < tMin {
			tMin = b
		}
		if first || b > tMax {
			tMax = b
		}
		first = false
	}

	intervalSec64 := int64(intervalSec)
	bars := make([]model.BarRecord, 0, (tMax-tMin)/intervalSec64+1)

	var lastClose decimal.Decimal
	haveClose := false
	var lastBid, lastAsk decimal.Decimal
	haveBid, haveAsk := false, false

	for sec := tMin; sec <= tMax; sec += intervalSec64 {
		ta, hasTrade := tradeBuckets[sec]
		qa, hasQuote := quoteBuckets[sec]
		isGap := !hasTrade
		if isGap {
			result.GapsFilled++
		}

		var bar model.BarRecord
		bar.Symbol = symbol
		bar.WindowStart = time.Unix(sec, 0).UTC()

		if hasTrade {
			bar.Open = floatOf(ta.open)
			bar.High = floatOf(ta.high)
			bar.Low = floatOf(ta.low)
			bar.Close = floatOf(ta.close)
			bar.VolumeBase = floatOf(ta.volumeBase)
			bar.VolumeQuote = floatOf(ta.volumeQuote)
			bar.TradeCount = ta.tradeCount
			if ta.volumeBase.Sign() > 0 {
				bar.Vwap = floatOf(ta.volumeQuote.Div(ta.volumeBase))
			} else {
				bar.Vwap = bar.Close
			}
			lastClose = ta.close
			haveClose = true
		} else {
			close := 0.0
			if haveClose {
				close = floatOf(lastClose)
			}
			bar.Open, bar.High, bar.Low, bar.Close = close, close, close, close
			bar.VolumeBase, bar.VolumeQuote, bar.TradeCount = 0, 0, 0
			bar.Vwap = close
		}

		if hasQuote {
			lastBid, lastAsk = qa.bid, qa.ask
			haveBid, haveAsk = true, true
		}
		if haveBid {
			bar.Bid = floatOf(lastBid)
			bar.HasBid = true
		}
		if haveAsk {
			bar.Ask = floatOf(lastAsk)
			bar.HasAsk = true
		}
		if haveBid && haveAsk {
			bar.Spread = bar.Ask - bar.Bid
		}

		bars = append(bars, bar)
	}

	result.BucketsWritten = len(bars)
	return bars, result
}

func floatOf(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
