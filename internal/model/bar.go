package model

import "time"

// BarRecord is a one-second OHLCV+quote bar, as produced by the Bar
// Aggregator (C6) and written to columnar partitions. OHLCV fields stay
// float64 — precision accumulation happens upstream in decimal.Decimal
// during aggregation; the bar itself is the analytics-facing output.
type BarRecord struct {
	Symbol      string    `parquet:"symbol" json:"symbol"`
	WindowStart time.Time `parquet:"window_start,timestamp" json:"window_start"`
	Open        float64   `parquet:"open" json:"open"`
	High        float64   `parquet:"high" json:"high"`
	Low         float64   `parquet:"low" json:"low"`
	Close       float64   `parquet:"close" json:"close"`
	VolumeBase  float64   `parquet:"volume_base" json:"volume_base"`
	VolumeQuote float64   `parquet:"volume_quote" json:"volume_quote"`
	TradeCount  int64     `parquet:"trade_count" json:"trade_count"`
	Vwap        float64   `parquet:"vwap" json:"vwap"`
	Bid         float64   `parquet:"bid" json:"bid"`
	Ask         float64   `parquet:"ask" json:"ask"`
	Spread      float64   `parquet:"spread" json:"spread"`
	HasBid      bool      `parquet:"has_bid" json:"has_bid"`
	HasAsk      bool      `parquet:"has_ask" json:"has_ask"`
}

// Validate re-checks the OHLC/volume/vwap invariants every produced bar
// must satisfy. Used by the aggregator's own tests and by any downstream
// QA pass.
func (b BarRecord) Validate() error {
	if b.Low > minf(b.Open, b.Close) {
		return errInvariant("low > min(open, close)")
	}
	if b.High < maxf(b.Open, b.Close) {
		return errInvariant("high < max(open, close)")
	}
	if b.VolumeBase < 0 {
		return errInvariant("volume_base < 0")
	}
	if b.VolumeBase > 0 && (b.Vwap < b.Low || b.Vwap > b.High) {
		return errInvariant("vwap out of [low, high]")
	}
	return nil
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

type invariantError string

func (e invariantError) Error() string { return "bar invariant violated: " + string(e) }

func errInvariant(msg string) error { return invariantError(msg) }

// FetchRow is a normalised row from the Scheduled Fetcher (C7): one
// OHLCV observation for an external key at a given UTC minute.
type FetchRow struct {
	Ts     time.Time `parquet:"ts,timestamp" json:"ts"`
	Open   float64   `parquet:"open" json:"open"`
	High   float64   `parquet:"high" json:"high"`
	Low    float64   `parquet:"low" json:"low"`
	Close  float64   `parquet:"close" json:"close"`
	Volume float64   `parquet:"volume" json:"volume"`
	Key    string    `parquet:"key" json:"key"`
}
