package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/clock"
)

// SymbolKey names one (exchange, symbol) pair the reporter counts raw
// and bar files for.
type SymbolKey struct {
	Exchange string
	Symbol   string
}

// Heartbeat is the machine-readable document written every reporting
// interval and served at GET /healthz.
type Heartbeat struct {
	Status     Status              `json:"status"`
	Timestamp  time.Time           `json:"timestamp"`
	Uptime     string              `json:"uptime"`
	Components map[string]Snapshot `json:"components"`
	FileCounts map[string]FileCounts `json:"file_counts"`
	FetcherRows map[string]int     `json:"fetcher_rows"`
	DiskUsageBytes int64           `json:"disk_usage_bytes"`
}

// Reporter owns the component Registry plus the static inventory of
// symbols/keys it counts files for, and emits the heartbeat/report
// artefacts on a fixed interval.
type Reporter struct {
	Registry *Registry

	Root        string
	Symbols     []SymbolKey
	FetcherDataset string
	FetcherKeys []string

	startedAt time.Time
}

// NewReporter constructs a Reporter. startedAt should be the moment the
// orchestrator began, for uptime reporting.
func NewReporter(root string, symbols []SymbolKey, fetcherDataset string, fetcherKeys []string, startedAt time.Time) *Reporter {
	return &Reporter{
		Registry:       NewRegistry(),
		Root:           root,
		Symbols:        symbols,
		FetcherDataset: fetcherDataset,
		FetcherKeys:    fetcherKeys,
		startedAt:      startedAt,
	}
}

// Build assembles the current heartbeat document.
func (r *Reporter) Build(now time.Time) Heartbeat {
	day := clock.DayOf(now.UnixMilli())
	components := r.Registry.Snapshot()

	fileCounts := make(map[string]FileCounts, len(r.Symbols))
	for _, sk := range r.Symbols {
		key := sk.Exchange + ":" + sk.Symbol
		fileCounts[key] = FileCounts{
			RawFiles: RawFileCount(r.Root, sk.Exchange, sk.Symbol, day),
			BarRows:  BarRowCount(r.Root, sk.Exchange, sk.Symbol, day),
		}
	}

	fetcherRows := make(map[string]int, len(r.FetcherKeys))
	for _, key := range r.FetcherKeys {
		fetcherRows[key] = FetcherRowCount(r.Root, r.FetcherDataset, key, day)
	}

	return Heartbeat{
		Status:         OverallStatus(components),
		Timestamp:      now,
		Uptime:         now.Sub(r.startedAt).String(),
		Components:     components,
		FileCounts:     fileCounts,
		FetcherRows:    fetcherRows,
		DiskUsageBytes: DiskUsageBytes(r.Root),
	}
}

// WriteArtefacts writes both the machine-readable heartbeat and the
// human-readable report, overwriting the previous ones.
func (r *Reporter) WriteArtefacts(now time.Time) error {
	hb := r.Build(now)

	heartbeatPath := clock.HealthHeartbeatPath(r.Root)
	if err := os.MkdirAll(filepath.Dir(heartbeatPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for heartbeat: %w", err)
	}
	b, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	if err := os.WriteFile(heartbeatPath, b, 0o644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}

	reportPath := clock.HealthReportPath(r.Root)
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for report: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(renderReport(hb)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func renderReport(hb Heartbeat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s\n", hb.Status)
	fmt.Fprintf(&b, "timestamp: %s\n", hb.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "uptime: %s\n", hb.Uptime)
	fmt.Fprintf(&b, "disk usage: %d bytes\n\n", hb.DiskUsageBytes)

	fmt.Fprintln(&b, "components:")
	for name, s := range hb.Components {
		fmt.Fprintf(&b, "  %s: status=%s last_activity=%s last_error=%q p50=%dms p95=%dms max=%dms\n",
			name, s.Status, s.LastActivity.Format(time.RFC3339), s.LastError, s.P50LatencyMs, s.P95LatencyMs, s.MaxLatencyMs)
	}

	fmt.Fprintln(&b, "\nraw/bar file counts (today):")
	for key, fc := range hb.FileCounts {
		fmt.Fprintf(&b, "  %s: raw_files=%d bar_rows=%d\n", key, fc.RawFiles, fc.BarRows)
	}

	fmt.Fprintln(&b, "\nfetcher rows (today):")
	for key, n := range hb.FetcherRows {
		fmt.Fprintf(&b, "  %s: %d\n", key, n)
	}
	return b.String()
}

// Run ticks WriteArtefacts every interval until ctx is cancelled, writing
// one more snapshot of the components' current states on the way out.
// Components still shutting down appear there with their last status.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := r.WriteArtefacts(time.Now()); err != nil {
				log.Error().Err(err).Msg("health: failed to write final artefacts")
			}
			return
		case now := <-ticker.C:
			if err := r.WriteArtefacts(now); err != nil {
				log.Error().Err(err).Msg("health: failed to write artefacts")
			}
		}
	}
}

// Handler returns a gorilla/mux router serving GET /healthz (the same
// JSON document WriteArtefacts persists) and GET /metrics
// (promhttp against gatherer).
func (r *Reporter) Handler(gatherer prometheus.Gatherer) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		hb := r.Build(time.Now())
		w.Header().Set("Content-Type", "application/json")
		if hb.Status == StatusError {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(hb)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}
