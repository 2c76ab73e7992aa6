// Package ingest runs one exchange connection end to end: dial, subscribe,
// read frames, decode through an Adapter, deduplicate, and fan out to the
// Rotating Raw Writer and the Event Bus. Reconnection uses capped
// exponential backoff with jitter, in the style of
// internal/infrastructure/httpclient's retry pool.
package ingest

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/adapter"
	"github.com/tradewithmeai/cryptolake/internal/bus"
	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// State is the connection lifecycle an ingestor moves through.
type State string

const (
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateDraining   State = "draining"
	StateClosed     State = "closed"
)

const recvTimeout = 60 * time.Second

// minHealthySession is how long a connection must stay up before it
// counts as a successful session, resetting the reconnect backoff.
// Guards against a connect that immediately drops being mistaken for a
// stable one.
const minHealthySession = 30 * time.Second

// Config bundles what one ingestor instance needs beyond its adapter.
type Config struct {
	Exchange            string
	Symbols             []string
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
	ReconnectJitter     float64
}

// Ingestor owns one exchange's websocket connection for the life of the
// process. A single connection can multiplex every symbol configured for
// that exchange, so the ingestor keeps one Rotating Raw Writer per
// symbol — never per connection — matching the on-disk layout of one
// writer per (exchange, symbol).
type Ingestor struct {
	cfg     Config
	adapter adapter.Adapter
	writers map[string]*rawstore.Writer
	bus     *bus.Bus
	dedup   Deduper
	metrics *Metrics

	stateMu sync.Mutex
	state   State

	latencyMu sync.Mutex
	latencies []int64 // rolling window, most recent 1000
}

// New constructs an Ingestor. writers must have one entry per symbol in
// cfg.Symbols, keyed by the adapter's normalised symbol spelling.
func New(cfg Config, a adapter.Adapter, writers map[string]*rawstore.Writer, b *bus.Bus, d Deduper, m *Metrics) *Ingestor {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 10 * time.Second
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = 300 * time.Second
	}
	if cfg.ReconnectJitter <= 0 {
		cfg.ReconnectJitter = 0.5
	}
	if d == nil {
		d = NoopDeduper{}
	}
	return &Ingestor{cfg: cfg, adapter: a, writers: writers, bus: b, dedup: d, metrics: m, state: StateClosed}
}

// Name returns the exchange this ingestor connects to.
func (ig *Ingestor) Name() string { return ig.cfg.Exchange }

// Writers returns the per-symbol Rotating Raw Writers this ingestor
// owns, for the orchestrator's force-close-on-shutdown pass.
func (ig *Ingestor) Writers() map[string]*rawstore.Writer { return ig.writers }

func (ig *Ingestor) State() State {
	ig.stateMu.Lock()
	defer ig.stateMu.Unlock()
	return ig.state
}

func (ig *Ingestor) setState(s State) {
	ig.stateMu.Lock()
	ig.state = s
	ig.stateMu.Unlock()
}

// Run connects, subscribes, and reads frames until ctx is cancelled,
// reconnecting with capped exponential backoff on any connection error.
// It returns only when ctx is done.
func (ig *Ingestor) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			ig.setState(StateClosed)
			return
		}

		ig.setState(StateConnecting)
		connectedAt, err := ig.runOnce(ctx)
		if ctx.Err() != nil {
			ig.setState(StateClosed)
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("exchange", ig.cfg.Exchange).Msg("ingestor: connection lost, reconnecting")
		}
		if ig.metrics != nil {
			ig.metrics.Reconnects.WithLabelValues(ig.cfg.Exchange).Inc()
		}

		if !connectedAt.IsZero() && time.Since(connectedAt) >= minHealthySession {
			attempt = 0
		}

		backoff := ig.backoffFor(attempt)
		attempt++
		select {
		case <-ctx.Done():
			ig.setState(StateClosed)
			return
		case <-time.After(backoff):
		}
	}
}

// backoffFor returns a capped-exponential delay with up to
// cfg.ReconnectJitter fractional jitter added on top.
func (ig *Ingestor) backoffFor(attempt int) time.Duration {
	base := ig.cfg.ReconnectBackoff * time.Duration(1<<uint(minInt(attempt, 10)))
	if base > ig.cfg.MaxReconnectBackoff {
		base = ig.cfg.MaxReconnectBackoff
	}
	jitter := time.Duration(rand.Float64() * ig.cfg.ReconnectJitter * float64(base))
	return base + jitter
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// runOnce performs one connect-subscribe-read cycle, returning when the
// connection drops or ctx is cancelled. The returned time is when the
// connection was established, zero if it never connected, letting the
// caller decide whether the session stayed up long enough to reset the
// reconnect backoff.
func (ig *Ingestor) runOnce(ctx context.Context) (time.Time, error) {
	url := ig.adapter.BuildConnectURL(ig.cfg.Symbols)
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()

	connectedAt := time.Now()
	ig.setState(StateConnected)
	log.Info().Str("exchange", ig.cfg.Exchange).Str("url", url).Msg("ingestor: connected")

	msgs, err := ig.adapter.BuildSubscribeMessages(ig.cfg.Symbols)
	if err != nil {
		return connectedAt, err
	}
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, m); err != nil {
			return connectedAt, err
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ig.setState(StateDraining)
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		conn.SetReadDeadline(time.Now().Add(recvTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return connectedAt, err
		}
		ig.handleFrame(ctx, raw)
	}
}

func (ig *Ingestor) handleFrame(ctx context.Context, raw []byte) {
	recvMillis := clock.NowMillis()
	ev, err := ig.adapter.DecodeFrame(raw, recvMillis)
	if err != nil {
		log.Error().Err(err).Str("exchange", ig.cfg.Exchange).Msg("ingestor: decode error, dropping frame")
		if ig.metrics != nil {
			ig.metrics.Dropped.WithLabelValues(ig.cfg.Exchange, "decode_error").Inc()
		}
		return
	}
	if ev == nil {
		return
	}

	if err := ev.Validate(); err != nil {
		log.Warn().Err(err).Str("exchange", ig.cfg.Exchange).Str("symbol", ev.Symbol).
			Msg("ingestor: event failed validation, flagging and continuing")
	}

	if ig.dedup.SeenBefore(ctx, *ev) {
		if ig.metrics != nil {
			ig.metrics.Dropped.WithLabelValues(ig.cfg.Exchange, "duplicate").Inc()
		}
		return
	}

	ig.recordLatency(*ev)
	if ig.metrics != nil {
		ig.metrics.EventsTotal.WithLabelValues(ig.cfg.Exchange, string(ev.StreamKind)).Inc()
		ig.metrics.Latency.WithLabelValues(ig.cfg.Exchange, ev.Symbol).Observe(float64(ev.Latency()))
	}

	if w, ok := ig.writers[ev.Symbol]; ok {
		w.Write(*ev, recvMillis)
	} else {
		log.Warn().Str("exchange", ig.cfg.Exchange).Str("symbol", ev.Symbol).
			Msg("ingestor: no writer configured for symbol, publishing to bus only")
	}
	ig.bus.PublishEvent(*ev)
}

const latencyWindowSize = 1000

func (ig *Ingestor) recordLatency(ev model.CanonicalEvent) {
	ig.latencyMu.Lock()
	defer ig.latencyMu.Unlock()
	ig.latencies = append(ig.latencies, ev.Latency())
	if len(ig.latencies) > latencyWindowSize {
		ig.latencies = ig.latencies[len(ig.latencies)-latencyWindowSize:]
	}
}

// LatencyPercentiles returns p50, p95, and max of the rolling latency
// window, in milliseconds. Returns zeros if no events have been recorded
// yet.
func (ig *Ingestor) LatencyPercentiles() (p50, p95, max int64) {
	ig.latencyMu.Lock()
	defer ig.latencyMu.Unlock()
	n := len(ig.latencies)
	if n == 0 {
		return 0, 0, 0
	}
	sorted := append([]int64(nil), ig.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 = sorted[n*50/100]
	p95 = sorted[minInt(n*95/100, n-1)]
	max = sorted[n-1]
	return
}
