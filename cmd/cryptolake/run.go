package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradewithmeai/cryptolake/internal/audit"
	"github.com/tradewithmeai/cryptolake/internal/config"
	"github.com/tradewithmeai/cryptolake/internal/fetcher"
	"github.com/tradewithmeai/cryptolake/internal/orchestrator"
)

// runCmd starts every configured component and blocks until ctx is
// cancelled, at which point it drives a bounded graceful shutdown.
func runCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingest/aggregate/fetch/report pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("fatal config: %w", err)
			}

			auditSink, err := buildAuditSink(cfg.Audit.DSN)
			if err != nil {
				return fmt.Errorf("fatal config: %w", err)
			}

			var source fetcher.Source
			if cfg.Fetcher.BaseURL != "" && len(cfg.Fetcher.Keys) > 0 {
				source = fetcher.NewHTTPSource(cfg.Fetcher.BaseURL, cfg.Fetcher.HTTPTimeout)
			}

			o := orchestrator.New(cfg, source, auditSink)

			srv := &http.Server{
				Addr:    cfg.Health.ListenAddr,
				Handler: o.Reporter().Handler(o.MetricsGatherer()),
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("run: health http server stopped unexpectedly")
				}
			}()

			o.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownHTTPTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		},
	}
}

func buildAuditSink(dsn string) (audit.Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	sink, err := audit.New(dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit sink: %w", err)
	}
	return sink, nil
}

const shutdownHTTPTimeout = 5 * time.Second
