package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewithmeai/cryptolake/internal/bus"
	"github.com/tradewithmeai/cryptolake/internal/model"
	"github.com/tradewithmeai/cryptolake/internal/rawstore"
)

// testAdapter decodes raw frames as CanonicalEvent JSON directly, so
// tests can drive the ingestor without a real exchange wire format.
type testAdapter struct {
	connectURL string
}

func (a *testAdapter) Name() string                         { return "test" }
func (a *testAdapter) BuildConnectURL(symbols []string) string { return a.connectURL }
func (a *testAdapter) BuildSubscribeMessages(symbols []string) ([][]byte, error) {
	return nil, nil
}
func (a *testAdapter) DecodeFrame(raw []byte, recvMillis int64) (*model.CanonicalEvent, error) {
	var ev model.CanonicalEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	ev.TsRecv = recvMillis
	return &ev, nil
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

var upgrader = websocket.Upgrader{}

func tradeFrame(tradeID int64, tsEvent int64) []byte {
	price, _ := model.ParseDecimal("100.0")
	qty, _ := model.ParseDecimal("1.0")
	ev := model.CanonicalEvent{
		Exchange:   "test",
		Symbol:     "BTCUSD",
		StreamKind: model.StreamTrade,
		Price:      price,
		Qty:        qty,
		Side:       model.SideBuy,
		TsEvent:    tsEvent,
		TradeID:    &tradeID,
	}
	b, _ := json.Marshal(ev)
	return b
}

// The ingestor reconnects after a server-side disconnect and resumes
// delivering events in the order they were sent, across the reconnect.
func TestReconnectOrderingPreserved(t *testing.T) {
	firstBatch := [][]byte{tradeFrame(1, 1000), tradeFrame(2, 1001)}
	secondBatch := [][]byte{tradeFrame(3, 2000), tradeFrame(4, 2001)}

	connCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connCount++
		batch := firstBatch
		if connCount > 1 {
			batch = secondBatch
		}
		for _, frame := range batch {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		if connCount == 1 {
			conn.Close() // force a reconnect after the first batch
		} else {
			time.Sleep(500 * time.Millisecond)
		}
	}))
	defer server.Close()

	root := t.TempDir()
	w := rawstore.New(root, "test", "BTCUSD", 60)
	defer w.Close()
	b := bus.New(16)
	q := b.Subscribe(bus.ChannelFor(model.StreamTrade, "BTCUSD"))

	a := &testAdapter{connectURL: wsURL(server)}
	cfg := Config{
		Exchange:            "test",
		Symbols:             []string{"BTCUSD"},
		ReconnectBackoff:    10 * time.Millisecond,
		MaxReconnectBackoff: 50 * time.Millisecond,
		ReconnectJitter:     0,
	}
	ig := New(cfg, a, map[string]*rawstore.Writer{"BTCUSD": w}, b, NoopDeduper{}, NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go ig.Run(ctx)

	var ids []int64
	deadline := time.After(1500 * time.Millisecond)
	for len(ids) < 4 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", ids)
		default:
		}
		ev, ok := q.TryRead()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		ids = append(ids, *ev.TradeID)
	}

	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestBackoffIsCappedExponentialWithJitter(t *testing.T) {
	ig := &Ingestor{cfg: Config{
		ReconnectBackoff:    1 * time.Second,
		MaxReconnectBackoff: 5 * time.Second,
		ReconnectJitter:     0,
	}}

	require.Equal(t, 1*time.Second, ig.backoffFor(0))
	require.Equal(t, 2*time.Second, ig.backoffFor(1))
	require.Equal(t, 4*time.Second, ig.backoffFor(2))
	require.Equal(t, 5*time.Second, ig.backoffFor(3), "must cap at MaxReconnectBackoff")
}
