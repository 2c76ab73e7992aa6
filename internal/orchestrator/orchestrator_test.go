package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/config"
	"github.com/tradewithmeai/cryptolake/internal/model"
)

type fakeFetchSource struct{}

func (fakeFetchSource) FetchRange(ctx context.Context, key string, from, to time.Time) ([]model.FetchRow, error) {
	return nil, nil
}

func testConfig(basePath string) *config.Config {
	return &config.Config{
		BasePath: basePath,
		Exchanges: []config.ExchangeConfig{
			{Name: "binance", WSURL: "wss://example.invalid/ws", Symbols: []string{"BTCUSDT"}},
		},
		WriteIntervalSec:    1,
		ReconnectBackoff:    10 * time.Millisecond,
		MaxReconnectBackoff: 50 * time.Millisecond,
		ReconnectJitter:     0,
		Aggregator: config.AggregatorConfig{
			ResampleIntervalSec: 1,
			ParquetCompression:  "snappy",
			ScheduleMinutes:     1,
		},
		Fetcher: config.FetcherConfig{
			Dataset:             "external",
			Keys:                []string{"ETHUSD"},
			ScheduleMinutes:     1,
			StartupLookbackDays: 1,
			RuntimeLookbackDays: 1,
			RequestsPerSecond:   100,
			Burst:               10,
		},
		Health: config.HealthConfig{ReportIntervalSec: 1},
		Testing: config.TestingOverrides{Enabled: true, BasePath: basePath},
	}
}

func TestOrchestratorStartsAndStopsCleanly(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)

	o := New(cfg, fakeFetchSource{}, nil)
	require.NotNil(t, o)
	require.Len(t, o.ingestors, 1)
	require.NotNil(t, o.fetcher)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop within shutdown timeout")
	}

	_, err := os.Stat(filepath.Join(root, "logs", "health", "heartbeat.json"))
	assert.NoError(t, err)
}
