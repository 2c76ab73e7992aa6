package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// CoinbaseAdapter implements the subscribe-after-connect style against
// Coinbase's websocket feed: a single subscribe message naming product
// ids and channels, with "match"/"ticker" frame types.
type CoinbaseAdapter struct{}

func NewCoinbaseAdapter() *CoinbaseAdapter { return &CoinbaseAdapter{} }

func (a *CoinbaseAdapter) Name() string { return "coinbase" }

func (a *CoinbaseAdapter) BuildConnectURL(symbols []string) string {
	return "wss://ws-feed.exchange.coinbase.com"
}

type coinbaseSubscribeMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

func (a *CoinbaseAdapter) BuildSubscribeMessages(symbols []string) ([][]byte, error) {
	msg := coinbaseSubscribeMessage{
		Type:       "subscribe",
		ProductIDs: symbols,
		Channels:   []string{"ticker", "matches"},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("coinbase: marshal subscribe: %w", err)
	}
	return [][]byte{b}, nil
}

type coinbaseFrame struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Time      string `json:"time"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	TradeID   int64  `json:"trade_id"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
}

func parseISOMillis(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t.UnixMilli()
}

func (a *CoinbaseAdapter) DecodeFrame(raw []byte, recvMillis int64) (*model.CanonicalEvent, error) {
	var f coinbaseFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("coinbase: malformed frame: %w", err)
	}

	switch f.Type {
	case "subscriptions", "heartbeat", "error":
		return nil, nil

	case "match", "last_match":
		price, err := model.ParseDecimal(f.Price)
		if err != nil {
			return nil, err
		}
		qty, err := model.ParseDecimal(f.Size)
		if err != nil {
			return nil, err
		}
		side := model.SideBuy
		if f.Side == "sell" {
			side = model.SideSell
		}
		tradeID := f.TradeID
		return &model.CanonicalEvent{
			Exchange:   a.Name(),
			Symbol:     NormalizeSymbol(f.ProductID),
			TsEvent:    parseISOMillis(f.Time, recvMillis),
			TsRecv:     recvMillis,
			StreamKind: model.StreamTrade,
			Price:      price,
			Qty:        qty,
			Side:       side,
			TradeID:    &tradeID,
		}, nil

	case "ticker":
		bid, err := model.ParseDecimal(f.BestBid)
		if err != nil {
			return nil, err
		}
		ask, err := model.ParseDecimal(f.BestAsk)
		if err != nil {
			return nil, err
		}
		return &model.CanonicalEvent{
			Exchange:   a.Name(),
			Symbol:     NormalizeSymbol(f.ProductID),
			TsEvent:    parseISOMillis(f.Time, recvMillis),
			TsRecv:     recvMillis,
			StreamKind: model.StreamBookTicker,
			Bid:        bid,
			Ask:        ask,
		}, nil
	}

	return nil, nil
}
