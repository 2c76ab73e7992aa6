// Package model holds the canonical wire types shared by every component:
// the normalised inbound event, the bar record produced by aggregation,
// and small helpers for fields that are sometimes absent on the wire.
package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// StreamKind distinguishes trade prints from top-of-book quote updates.
type StreamKind string

const (
	StreamTrade       StreamKind = "trade"
	StreamBookTicker  StreamKind = "book_ticker"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideNone Side = ""
)

// Decimal is an optional decimal.Decimal that round-trips through JSON as
// a decimal string (a plain number is also accepted on decode), or as null
// when not present, without forcing every venue's adapter to fabricate a
// zero value.
type Decimal struct {
	Value decimal.Decimal
	Valid bool
}

// NewDecimal wraps a present value.
func NewDecimal(v decimal.Decimal) Decimal { return Decimal{Value: v, Valid: true} }

// ParseDecimal parses s into a present Decimal; an empty string yields an
// absent Decimal rather than an error, since venues frequently omit
// optional fields as empty strings.
func ParseDecimal(s string) (Decimal, error) {
	if s == "" {
		return Decimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return NewDecimal(v), nil
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Value.String())
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Decimal{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*d = NewDecimal(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*d = NewDecimal(decimal.NewFromFloat(f))
	return nil
}

func (d Decimal) Float() float64 {
	if !d.Valid {
		return 0
	}
	f, _ := d.Value.Float64()
	return f
}

// CanonicalEvent is the normalised inbound record produced by an
// Exchange Adapter and consumed by the Rotating Raw Writer and Event Bus.
type CanonicalEvent struct {
	Exchange   string     `json:"exchange"`
	Symbol     string     `json:"symbol"`
	TsEvent    int64      `json:"ts_event"`
	TsRecv     int64      `json:"ts_recv"`
	StreamKind StreamKind `json:"stream_kind"`
	Price      Decimal    `json:"price,omitempty"`
	Qty        Decimal    `json:"qty,omitempty"`
	Side       Side       `json:"side,omitempty"`
	Bid        Decimal    `json:"bid,omitempty"`
	Ask        Decimal    `json:"ask,omitempty"`
	TradeID    *int64     `json:"trade_id,omitempty"`
}

// Validate checks price/qty/bid/ask sanity for the event's stream kind.
// Violations are returned as an error for the caller to log, never as a
// reason to drop the event.
func (e CanonicalEvent) Validate() error {
	switch e.StreamKind {
	case StreamTrade:
		if !e.Price.Valid || !e.Qty.Valid {
			return fmt.Errorf("trade event missing price/qty")
		}
		if e.Price.Value.Sign() <= 0 || e.Qty.Value.Sign() <= 0 {
			return fmt.Errorf("trade event non-positive price/qty")
		}
	case StreamBookTicker:
		if !e.Bid.Valid || !e.Ask.Valid {
			return fmt.Errorf("book_ticker event missing bid/ask")
		}
		if e.Ask.Value.LessThan(e.Bid.Value) {
			return fmt.Errorf("book_ticker ask < bid")
		}
	}
	return nil
}

// Latency is ts_recv - ts_event, in milliseconds. Zero when ts_event was
// missing at decode time and receive-time stood in for it.
func (e CanonicalEvent) Latency() int64 {
	return e.TsRecv - e.TsEvent
}
