package barengine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

func dec(s string) model.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return model.NewDecimal(v)
}

func trade(tsMillis int64, price, qty string) model.CanonicalEvent {
	return model.CanonicalEvent{
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		TsEvent:    tsMillis,
		TsRecv:     tsMillis,
		StreamKind: model.StreamTrade,
		Price:      dec(price),
		Qty:        dec(qty),
	}
}

func quote(tsMillis int64, bid, ask string) model.CanonicalEvent {
	return model.CanonicalEvent{
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		TsEvent:    tsMillis,
		TsRecv:     tsMillis,
		StreamKind: model.StreamBookTicker,
		Bid:        dec(bid),
		Ask:        dec(ask),
	}
}

func TestAggregateTwoSecondWorkedExample(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	events := []model.CanonicalEvent{
		trade(t0+0, "1.0", "1.0"),
		trade(t0+500, "1.2", "2.0"),
		trade(t0+900, "1.1", "1.0"),
		quote(t0+1200, "1.05", "1.15"),
	}

	bars, result := Aggregate("BTCUSDT", events, 1)
	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, time.UnixMilli(t0).UTC().Truncate(time.Second), first.WindowStart)
	assert.InDelta(t, 1.0, first.Open, 1e-9)
	assert.InDelta(t, 1.2, first.High, 1e-9)
	assert.InDelta(t, 1.0, first.Low, 1e-9)
	assert.InDelta(t, 1.1, first.Close, 1e-9)
	assert.InDelta(t, 4.0, first.VolumeBase, 1e-9)
	// volume_quote = Σ(price·qty) = 1.0·1.0 + 1.2·2.0 + 1.1·1.0 = 4.5
	assert.InDelta(t, 4.5, first.VolumeQuote, 1e-9)
	assert.EqualValues(t, 3, first.TradeCount)
	// vwap = volume_quote / volume_base = 4.5 / 4.0 = 1.125
	assert.InDelta(t, 1.125, first.Vwap, 1e-9)
	assert.False(t, first.HasBid)
	assert.False(t, first.HasAsk)

	second := bars[1]
	assert.Equal(t, first.WindowStart.Add(time.Second), second.WindowStart)
	assert.InDelta(t, 1.1, second.Open, 1e-9)
	assert.InDelta(t, 1.1, second.High, 1e-9)
	assert.InDelta(t, 1.1, second.Low, 1e-9)
	assert.InDelta(t, 1.1, second.Close, 1e-9)
	assert.InDelta(t, 0.0, second.VolumeBase, 1e-9)
	assert.EqualValues(t, 0, second.TradeCount)
	assert.True(t, second.HasBid)
	assert.True(t, second.HasAsk)
	assert.InDelta(t, 1.05, second.Bid, 1e-9)
	assert.InDelta(t, 1.15, second.Ask, 1e-9)
	assert.InDelta(t, 0.10, second.Spread, 1e-9)

	assert.Equal(t, len(events), result.EventsRead)
	assert.Equal(t, 2, result.BucketsWritten)
	assert.Equal(t, 1, result.GapsFilled)
}

func TestAggregateQuoteOnlyGapForwardFill(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	events := []model.CanonicalEvent{
		trade(t0, "100.0", "1.0"),
		quote(t0+1000, "99.5", "100.5"),
		quote(t0+2000, "99.6", "100.6"),
		quote(t0+3000, "99.7", "100.7"),
	}

	bars, result := Aggregate("BTCUSDT", events, 1)
	require.Len(t, bars, 4)

	assert.False(t, bars[0].HasBid)
	assert.InDelta(t, 100.0, bars[0].Close, 1e-9)

	wantQuotes := []struct{ bid, ask float64 }{
		{99.5, 100.5}, {99.6, 100.6}, {99.7, 100.7},
	}
	for i, wq := range wantQuotes {
		bar := bars[i+1]
		assert.InDelta(t, 100.0, bar.Open, 1e-9)
		assert.InDelta(t, 100.0, bar.High, 1e-9)
		assert.InDelta(t, 100.0, bar.Low, 1e-9)
		assert.InDelta(t, 100.0, bar.Close, 1e-9)
		assert.InDelta(t, 0.0, bar.VolumeBase, 1e-9)
		assert.True(t, bar.HasBid)
		assert.True(t, bar.HasAsk)
		assert.InDelta(t, wq.bid, bar.Bid, 1e-9)
		assert.InDelta(t, wq.ask, bar.Ask, 1e-9)
	}

	assert.Equal(t, 3, result.GapsFilled)
}

func TestAggregateBarsSatisfyInvariants(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	events := []model.CanonicalEvent{
		trade(t0, "10.0", "1.0"),
		trade(t0+100, "11.0", "0.5"),
		quote(t0+200, "10.5", "10.6"),
		trade(t0+2000, "9.0", "2.0"),
	}

	bars, _ := Aggregate("BTCUSDT", events, 1)
	for _, bar := range bars {
		assert.NoError(t, bar.Validate())
	}
}

func TestAggregateWindowStartsAreContiguousWithNoDuplicates(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	events := []model.CanonicalEvent{
		trade(t0, "1.0", "1.0"),
		trade(t0+5000, "1.0", "1.0"),
	}

	bars, _ := Aggregate("BTCUSDT", events, 1)
	require.Len(t, bars, 6)

	seen := make(map[time.Time]bool)
	for i, bar := range bars {
		assert.False(t, seen[bar.WindowStart], "duplicate window_start %v", bar.WindowStart)
		seen[bar.WindowStart] = true
		if i > 0 {
			assert.Equal(t, bars[i-1].WindowStart.Add(time.Second), bar.WindowStart)
		}
	}
}

func TestAggregateIsIdempotentAcrossReruns(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	events := []model.CanonicalEvent{
		trade(t0, "1.0", "1.0"),
		trade(t0+500, "1.2", "2.0"),
		quote(t0+1200, "1.05", "1.15"),
	}

	barsA, resultA := Aggregate("BTCUSDT", events, 1)
	barsB, resultB := Aggregate("BTCUSDT", events, 1)

	assert.Equal(t, resultA, resultB)
	require.Equal(t, len(barsA), len(barsB))
	for i := range barsA {
		assert.Equal(t, barsA[i], barsB[i])
	}
}

func TestAggregateEmptyInputProducesNoBars(t *testing.T) {
	bars, result := Aggregate("BTCUSDT", nil, 1)
	assert.Nil(t, bars)
	assert.Equal(t, 0, result.BucketsWritten)
}
