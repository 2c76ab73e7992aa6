// Package orchestrator starts and stops every component as one unit,
// isolates failures to the component that raised them, and exposes a
// coherent shared health view over the whole process.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/adapter"
	"github.com/tradewithmeai/cryptolake/internal/audit"
	"github.com/tradewithmeai/cryptolake/internal/barengine"
	"github.com/tradewithmeai/cryptolake/internal/bus"
	"github.com/tradewithmeai/cryptolake/internal/clock"
	"github.com/tradewithmeai/cryptolake/internal/config"
	"github.com/tradewithmeai/cryptolake/internal/fetcher"
	"github.com/tradewithmeai/cryptolake/internal/health"
	"github.com/tradewithmeai/cryptolake/internal/ingest"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// shutdownTimeout bounds how long Run waits for the tasks to exit before
// giving up on them and proceeding to final flushing anyway.
const shutdownTimeout = 10 * time.Second

// Orchestrator wires every component named in the configuration and runs
// them as one supervised unit.
type Orchestrator struct {
	cfg      *config.Config
	registry *adapter.Registry
	bus      *bus.Bus
	audit    audit.Sink
	reporter *health.Reporter
	metrics  *ingest.Metrics
	promReg  *prometheus.Registry

	runID string

	ingestors []*ingest.Ingestor
	fetcher   *fetcher.Fetcher

	wg sync.WaitGroup
}

// New wires an Orchestrator from cfg. source is the Scheduled Fetcher's
// upstream; pass nil to skip fetcher startup entirely (e.g. when no keys
// are configured).
func New(cfg *config.Config, source fetcher.Source, auditSink audit.Sink) *Orchestrator {
	if auditSink == nil {
		auditSink = audit.NewNoop()
	}

	promReg := prometheus.NewRegistry()
	b := bus.New(256)
	metrics := ingest.NewMetrics(promReg)

	symbolKeys := make([]health.SymbolKey, 0)
	for _, ex := range cfg.Exchanges {
		for _, s := range ex.Symbols {
			symbolKeys = append(symbolKeys, health.SymbolKey{Exchange: ex.Name, Symbol: adapter.NormalizeSymbol(s)})
		}
	}
	reporter := health.NewReporter(cfg.BasePath, symbolKeys, cfg.Fetcher.Dataset, cfg.Fetcher.Keys, time.Now())

	o := &Orchestrator{
		cfg:      cfg,
		registry: adapter.NewRegistry(),
		bus:      b,
		audit:    auditSink,
		reporter: reporter,
		metrics:  metrics,
		promReg:  promReg,
		runID:    uuid.NewString(),
	}

	for _, ex := range cfg.Exchanges {
		ig, ok := o.buildIngestor(ex)
		if !ok {
			continue
		}
		o.ingestors = append(o.ingestors, ig)
	}

	if source != nil && len(cfg.Fetcher.Keys) > 0 {
		o.fetcher = fetcher.New(cfg.BasePath, cfg.Fetcher.Dataset, source, cfg.Aggregator.ParquetCompression,
			cfg.Fetcher.RequestsPerSecond, cfg.Fetcher.Burst)
	}

	return o
}

func (o *Orchestrator) buildIngestor(ex config.ExchangeConfig) (*ingest.Ingestor, bool) {
	a, ok := o.registry.Build(ex.Name)
	if !ok {
		log.Error().Str("exchange", ex.Name).Msg("orchestrator: unknown adapter, skipping exchange")
		o.audit.Record(context.Background(), audit.Event{
			Component: ex.Name, Level: audit.LevelFatalConfig, Message: "unknown adapter",
		})
		return nil, false
	}

	writers := make(map[string]*rawstore.Writer, len(ex.Symbols))
	for _, s := range ex.Symbols {
		sym := adapter.NormalizeSymbol(s)
		writers[sym] = rawstore.New(o.cfg.BasePath, ex.Name, sym, o.cfg.WriteIntervalSec)
	}

	var dedup ingest.Deduper = ingest.NoopDeduper{}
	if o.cfg.Redis.Addr != "" {
		dedup = ingest.NewRedisDeduper(o.cfg.Redis.Addr, o.cfg.Redis.Password, o.cfg.Redis.DB, o.cfg.Redis.Window)
	}

	icfg := ingest.Config{
		Exchange:            ex.Name,
		Symbols:             ex.Symbols,
		ReconnectBackoff:    o.cfg.ReconnectBackoff,
		MaxReconnectBackoff: o.cfg.MaxReconnectBackoff,
		ReconnectJitter:     o.cfg.ReconnectJitter,
	}
	return ingest.New(icfg, a, writers, o.bus, dedup, o.metrics), true
}

// Run starts every component and blocks until ctx is cancelled, then
// waits up to shutdownTimeout for all tasks to stop, force-closes every
// raw writer, and writes a final health snapshot before returning.
func (o *Orchestrator) Run(ctx context.Context) {
	log.Info().Str("run_id", o.runID).Msg("orchestrator: starting")

	for _, ig := range o.ingestors {
		ig := ig
		cell := o.reporter.Registry.Cell("ingest:" + ig.Name())
		cell.SetRunning(time.Now())
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ig.Run(ctx)
			cell.SetStopped(time.Now())
		}()
	}

	if o.fetcher != nil {
		cell := o.reporter.Registry.Cell("fetcher")
		cell.SetRunning(time.Now())
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.fetcher.Run(ctx, o.cfg.Fetcher.Keys,
				time.Duration(o.cfg.Fetcher.ScheduleMinutes)*time.Minute,
				time.Duration(o.cfg.Fetcher.StartupLookbackDays)*24*time.Hour,
				time.Duration(o.cfg.Fetcher.RuntimeLookbackDays)*24*time.Hour)
			cell.SetStopped(time.Now())
		}()
	}

	aggCell := o.reporter.Registry.Cell("aggregator")
	aggCell.SetRunning(time.Now())
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAggregatorLoop(ctx, aggCell)
		aggCell.SetStopped(time.Now())
	}()

	healthCell := o.reporter.Registry.Cell("health")
	healthCell.SetRunning(time.Now())
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.reporter.Run(ctx, time.Duration(o.cfg.Health.ReportIntervalSec)*time.Second)
		healthCell.SetStopped(time.Now())
	}()

	<-ctx.Done()
	log.Info().Str("run_id", o.runID).Msg("orchestrator: stop signal received, shutting down")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn().Str("run_id", o.runID).Msg("orchestrator: shutdown timeout exceeded, some tasks did not exit")
	}

	for name, w := range o.allWriters() {
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Str("writer", name).Msg("orchestrator: error force-closing writer")
		}
	}

	_ = o.reporter.WriteArtefacts(time.Now())
	_ = o.audit.Close()
	log.Info().Str("run_id", o.runID).Msg("orchestrator: stopped")
}

// runAggregatorLoop runs RunSymbolDay for every configured symbol on a
// fixed schedule. One symbol's failure is logged and audited but never
// prevents the others from running that tick.
func (o *Orchestrator) runAggregatorLoop(ctx context.Context, cell *health.Cell) {
	interval := time.Duration(o.cfg.Aggregator.ScheduleMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		now := time.Now().UTC()
		day := clock.DayOf(now.UnixMilli())
		for _, ex := range o.cfg.Exchanges {
			for _, s := range ex.Symbols {
				sym := adapter.NormalizeSymbol(s)
				rawDir := clock.RawDir(o.cfg.BasePath, ex.Name, sym, day)
				result, err := barengine.RunSymbolDay(o.cfg.BasePath, ex.Name, sym, rawDir,
					o.cfg.Aggregator.ResampleIntervalSec, o.cfg.Aggregator.ParquetCompression)
				if err != nil {
					cell.SetError(now, err)
					o.audit.Record(ctx, audit.Event{
						Component: ex.Name + ":" + sym, Level: audit.LevelAggregatorFailure, Message: err.Error(),
					})
					log.Error().Err(err).Str("exchange", ex.Name).Str("symbol", sym).Msg("orchestrator: aggregator run failed")
					continue
				}
				cell.SetRunning(now)
				log.Debug().Str("exchange", ex.Name).Str("symbol", sym).
					Int("buckets_written", result.BucketsWritten).Msg("orchestrator: aggregator run complete")
			}
		}
	}

	if o.cfg.Testing.Enabled {
		run()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (o *Orchestrator) allWriters() map[string]*rawstore.Writer {
	out := make(map[string]*rawstore.Writer)
	for _, ig := range o.ingestors {
		for sym, w := range ig.Writers() {
			out[ig.Name()+":"+sym] = w
		}
	}
	return out
}

// MetricsGatherer exposes the process's Prometheus registry for the
// health HTTP surface.
func (o *Orchestrator) MetricsGatherer() prometheus.Gatherer { return o.promReg }

// Reporter exposes the health reporter for the HTTP surface and CLI
// subcommands.
func (o *Orchestrator) Reporter() *health.Reporter { return o.reporter }
