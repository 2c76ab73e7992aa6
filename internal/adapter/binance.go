package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// BinanceAdapter implements the combined-stream style: every subscription
// is encoded in the connect URL itself, so BuildSubscribeMessages is a
// no-op.
type BinanceAdapter struct{}

func NewBinanceAdapter() *BinanceAdapter { return &BinanceAdapter{} }

func (a *BinanceAdapter) Name() string { return "binance" }

func (a *BinanceAdapter) BuildConnectURL(symbols []string) string {
	topics := make([]string, 0, len(symbols)*2)
	for _, s := range symbols {
		ls := strings.ToLower(s)
		topics = append(topics, ls+"@trade", ls+"@bookTicker")
	}
	return "wss://stream.binance.com:9443/stream?streams=" + strings.Join(topics, "/")
}

func (a *BinanceAdapter) BuildSubscribeMessages(symbols []string) ([][]byte, error) {
	return nil, nil
}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeID   int64  `json:"t"`
	IsMaker   bool   `json:"m"`
}

type binanceBookTicker struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

func (a *BinanceAdapter) DecodeFrame(raw []byte, recvMillis int64) (*model.CanonicalEvent, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("binance: malformed frame: %w", err)
	}
	data := env.Data
	if len(data) == 0 {
		data = raw
	}

	switch {
	case strings.Contains(env.Stream, "@trade"):
		var t binanceTrade
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("binance: malformed trade: %w", err)
		}
		price, err := model.ParseDecimal(t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := model.ParseDecimal(t.Qty)
		if err != nil {
			return nil, err
		}
		side := model.SideBuy
		if t.IsMaker {
			side = model.SideSell
		}
		tsEvent := t.EventTime
		if tsEvent == 0 {
			tsEvent = recvMillis
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

	case strings.Contains(env.Stream, "@bookTicker"):
		var b binanceBookTicker
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("binance: malformed bookTicker: %w", err)
		}
		bid, err := model.ParseDecimal(b.Bid)
		if err != nil {
			return nil, err
		}
		ask, err := model.ParseDecimal(b.Ask)
		if err != nil {
			return nil, err
		}
		return &model.CanonicalEvent{
			Exchange:   a.Name(),
			Symbol:     NormalizeSymbol(b.Symbol),
			TsEvent:    recvMillis,
			TsRecv:     recvMillis,
			StreamKind: model.StreamBookTicker,
			Bid:        bid,
			Ask:        ask,
		}, nil
	}

	// Unknown stream kind: heartbeat/ack/unrecognized — skip, not an error.
	return nil, nil
}
