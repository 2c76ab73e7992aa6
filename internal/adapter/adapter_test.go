package adapter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

func TestBinanceDecodeTrade(t *testing.T) {
	a := NewBinanceAdapter()
	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000123,"s":"BTCUSDT","p":"45000.50","q":"0.01","t":555,"m":true}}`)

	ev, err := a.DecodeFrame(raw, 1700000000200)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, "binance", ev.Exchange)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, model.StreamTrade, ev.StreamKind)
	assert.Equal(t, model.SideSell, ev.Side) // buyer-maker => sell
	assert.Equal(t, int64(1700000000123), ev.TsEvent)
	assert.True(t, ev.Price.Value.Equal(mustDecimal("45000.50")))
	require.NoError(t, ev.Validate())
}

func TestBinanceDecodeBookTicker(t *testing.T) {
	a := NewBinanceAdapter()
	raw := []byte(`{"stream":"ethusdt@bookTicker","data":{"s":"ETHUSDT","b":"2500.1","a":"2500.2"}}`)

	ev, err := a.DecodeFrame(raw, 1700000000500)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, model.StreamBookTicker, ev.StreamKind)
	assert.Equal(t, ev.TsEvent, ev.TsRecv, "missing ts_event must fall back to ts_recv")
}

func TestBinanceUnknownStreamSkips(t *testing.T) {
	a := NewBinanceAdapter()
	raw := []byte(`{"stream":"btcusdt@depth","data":{}}`)
	ev, err := a.DecodeFrame(raw, 1)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestBinanceMalformedIsError(t *testing.T) {
	a := NewBinanceAdapter()
	_, err := a.DecodeFrame([]byte(`not json`), 1)
	assert.Error(t, err)
}

func TestKrakenSubscribeMessagesOrdered(t *testing.T) {
	a := NewKrakenAdapter()
	msgs, err := a.BuildSubscribeMessages([]string{"BTC/USD"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, string(msgs[0]), `"channel":"trade"`)
	assert.Contains(t, string(msgs[1]), `"channel":"ticker"`)
}

func TestKrakenDecodeTrade(t *testing.T) {
	a := NewKrakenAdapter()
	raw := []byte(`{"channel":"trade","type":"update","data":[{"symbol":"BTC/USD","price":"45000.0","qty":"1.0","side":"buy","timestamp":"2025-01-01T00:00:00.000000000Z","trade_id":9}]}`)
	ev, err := a.DecodeFrame(raw, 1700000000000)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "BTCUSD", ev.Symbol)
	assert.Equal(t, model.SideBuy, ev.Side)
	require.NotNil(t, ev.TradeID)
	assert.Equal(t, int64(9), *ev.TradeID)
}

func TestKrakenHeartbeatSkips(t *testing.T) {
	a := NewKrakenAdapter()
	raw := []byte(`{"channel":"heartbeat"}`)
	ev, err := a.DecodeFrame(raw, 1)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestCoinbaseDecodeMatch(t *testing.T) {
	a := NewCoinbaseAdapter()
	raw := []byte(`{"type":"match","product_id":"BTC-USD","time":"2025-01-01T00:00:01.000Z","price":"45010.0","size":"0.5","side":"buy","trade_id":42}`)
	ev, err := a.DecodeFrame(raw, 1700000001500)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "BTCUSD", ev.Symbol)
	assert.Equal(t, int64(1735689601000), ev.TsEvent)
}

func TestCoinbaseSubscriptionsSkip(t *testing.T) {
	a := NewCoinbaseAdapter()
	raw := []byte(`{"type":"subscriptions"}`)
	ev, err := a.DecodeFrame(raw, 1)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSD", NormalizeSymbol("btc-usd"))
	assert.Equal(t, "ETHUSDT", NormalizeSymbol("ETH_USDT"))
}

func TestRegistryBuildsKnownAdapters(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"binance", "kraken", "coinbase"} {
		a, ok := r.Build(name)
		require.True(t, ok, name)
		assert.Equal(t, name, a.Name())
	}
	_, ok := r.Build("nonexistent")
	assert.False(t, ok)
}

func mustDecimal(s string) decimal.Decimal {
	v, err := model.ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return v.Value
}
