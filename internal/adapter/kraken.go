package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// KrakenAdapter implements the subscribe-after-connect style against the
// Kraken v2 WebSocket API: one connect URL, then a separate subscribe
// message per channel, with a channel/type envelope and ISO-8601 trade
// timestamps.
type KrakenAdapter struct{}

func NewKrakenAdapter() *KrakenAdapter { return &KrakenAdapter{} }

func (a *KrakenAdapter) Name() string { return "kraken" }

func (a *KrakenAdapter) BuildConnectURL(symbols []string) string {
	return "wss://ws.kraken.com/v2"
}

type krakenSubscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol"`
}

type krakenSubscribeMessage struct {
	Method string                `json:"method"`
	Params krakenSubscribeParams `json:"params"`
}

func (a *KrakenAdapter) BuildSubscribeMessages(symbols []string) ([][]byte, error) {
	normalized := make([]string, len(symbols))
	copy(normalized, symbols)

	msgs := make([][]byte, 0, 2)
	for _, channel := range []string{"trade", "ticker"} {
		msg := krakenSubscribeMessage{
			Method: "subscribe",
			Params: krakenSubscribeParams{Channel: channel, Symbol: normalized},
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("kraken: marshal subscribe(%s): %w", channel, err)
		}
		msgs = append(msgs, b)
	}
	return msgs, nil
}

type krakenEnvelope struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

type krakenTrade struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Qty       string `json:"qty"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
	TradeID   int64  `json:"trade_id"`
}

type krakenTicker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

func (a *KrakenAdapter) DecodeFrame(raw []byte, recvMillis int64) (*model.CanonicalEvent, error) {
	var env krakenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kraken: malformed frame: %w", err)
	}

	switch env.Channel {
	case "status", "heartbeat":
		return nil, nil
	}
	if env.Type == "subscribe" || env.Type == "unsubscribe" {
		return nil, nil
	}
	if len(env.Data) == 0 {
		return nil, nil
	}

	switch env.Channel {
	case "trade":
		var trades []krakenTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return nil, fmt.Errorf("kraken: malformed trade data: %w", err)
		}
		if len(trades) == 0 {
			return nil, nil
		}
		t := trades[0]
		price, err := model.ParseDecimal(t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := model.ParseDecimal(t.Qty)
		if err != nil {
			return nil, err
		}
		tsEvent := recvMillis
		if parsed, err := time.Parse(time.RFC3339Nano, t.Timestamp); err == nil {
			tsEvent = parsed.UnixMilli()
		}
		side := model.SideBuy
		if t.Side == "sell" {
			side = model.SideSell
		}
		tradeID := t.TradeID
		return &model.CanonicalEvent{
			Exchange:   a.Name(),
			Symbol:     NormalizeSymbol(t.Symbol),
			TsEvent:    tsEvent,
			TsRecv:     recvMillis,
			StreamKind: model.StreamTrade,
			Price:      price,
			Qty:        qty,
			Side:       side,
			TradeID:    &tradeID,
		}, nil

	case "ticker":
		var tickers []krakenTicker
		if err := json.Unmarshal(env.Data, &tickers); err != nil {
			return nil, fmt.Errorf("kraken: malformed ticker data: %w", err)
		}
		if len(tickers) == 0 {
			return nil, nil
		}
		tk := tickers[0]
		return &model.CanonicalEvent{
			Exchange:   a.Name(),
			Symbol:     NormalizeSymbol(tk.Symbol),
			TsEvent:    recvMillis,
			TsRecv:     recvMillis,
			StreamKind: model.StreamBookTicker,
			Bid:        model.NewDecimal(decimalFromFloat(tk.Bid)),
			Ask:        model.NewDecimal(decimalFromFloat(tk.Ask)),
		}, nil
	}

	return nil, nil
}
