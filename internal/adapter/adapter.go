// Package adapter abstracts venue-specific websocket protocols behind a
// uniform, stateless decoder — modeled as a capability set (build-URL,
// build-subscriptions, decode-frame) rather than class inheritance.
package adapter

import (
	"strings"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// Adapter is the capability set every exchange protocol implementation
// provides to an ingestor.
type Adapter interface {
	// Name returns the exchange identifier used in CanonicalEvent.Exchange
	// and in on-disk paths.
	Name() string

	// BuildConnectURL returns the absolute wss URL for the given symbols.
	// Combined-stream adapters encode subscriptions in the URL itself;
	// subscribe-after-connect adapters ignore symbols here.
	BuildConnectURL(symbols []string) string

	// BuildSubscribeMessages returns the ordered list of encoded
	// subscription requests to send after connecting. May be empty for
	// combined-stream adapters.
	BuildSubscribeMessages(symbols []string) ([][]byte, error)

	// DecodeFrame decodes one inbound websocket frame. A nil event with a
	// nil error means "skip" (heartbeat, ack, unknown type) — not an
	// error. Malformed JSON is returned as a non-fatal error for the
	// caller to log once and drop.
	DecodeFrame(raw []byte, recvMillis int64) (*model.CanonicalEvent, error)
}

// NormalizeSymbol upper-cases and strips common venue separators so every
// adapter arrives at the same canonical form regardless of how its wire
// protocol spells a pair (BTC-USD, BTC_USD, btcusd all become BTCUSD).
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// Registry is a factory keyed by exchange name, returning stateless
// adapter values. New venues require only a new Adapter implementation
// registered here.
type Registry struct {
	factories map[string]func() Adapter
}

// NewRegistry builds the default registry with every adapter this module
// ships.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Adapter)}
	r.Register("binance", func() Adapter { return NewBinanceAdapter() })
	r.Register("kraken", func() Adapter { return NewKrakenAdapter() })
	r.Register("coinbase", func() Adapter { return NewCoinbaseAdapter() })
	return r
}

// Register adds or replaces the factory for an exchange name.
func (r *Registry) Register(name string, factory func() Adapter) {
	r.factories[name] = factory
}

// Build returns a fresh adapter instance for the given exchange name, or
// false if no adapter is registered — a fatal configuration error for the
// ingestor that requested it.
func (r *Registry) Build(name string) (Adapter, bool) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
