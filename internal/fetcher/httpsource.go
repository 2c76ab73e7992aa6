package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// HTTPSource is a Source backed by a REST klines-style endpoint: one GET
// per key per call, returning an array of [openTime, open, high, low,
// close, volume, ...] rows, the same response shape Binance's
// /api/v3/klines serves. Any upstream using that shape can be pointed at
// by BaseURL.
type HTTPSource struct {
	client  *http.Client
	baseURL string
}

// NewHTTPSource builds an HTTPSource against baseURL with the given
// request timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// klineRow is one element of the upstream JSON array response: a
// heterogeneous array of [openTime, open, high, low, close, volume, ...].
// Decoding each row as []json.RawMessage lets the fields we need be
// parsed by position regardless of trailing fields upstream adds.
type klineRow []json.RawMessage

func (r klineRow) float(i int) (float64, error) {
	if i >= len(r) {
		return 0, fmt.Errorf("kline row has no field %d", i)
	}
	var s string
	if err := json.Unmarshal(r[i], &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(r[i], &f); err != nil {
		return 0, fmt.Errorf("field %d neither string nor number: %w", i, err)
	}
	return f, nil
}

// FetchRange performs one GET against baseURL/api/v3/klines for key
// between from and to, at one-minute granularity, and normalises the
// response into FetchRows.
func (s *HTTPSource) FetchRange(ctx context.Context, key string, from, to time.Time) ([]model.FetchRow, error) {
	q := url.Values{}
	q.Set("symbol", key)
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("limit", "1000")

	reqURL := fmt.Sprintf("%s/api/v3/klines?%s", s.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", key, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: upstream returned status %d", key, resp.StatusCode)
	}

	var rows []klineRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", key, err)
	}

	out := make([]model.FetchRow, 0, len(rows))
	for _, r := range rows {
		openMillis, err := r.float(0)
		if err != nil {
			return nil, fmt.Errorf("parse %s open time: %w", key, err)
		}
		open, err := r.float(1)
		if err != nil {
			return nil, fmt.Errorf("parse %s open: %w", key, err)
		}
		high, err := r.float(2)
		if err != nil {
			return nil, fmt.Errorf("parse %s high: %w", key, err)
		}
		low, err := r.float(3)
		if err != nil {
			return nil, fmt.Errorf("parse %s low: %w", key, err)
		}
		closePrice, err := r.float(4)
		if err != nil {
			return nil, fmt.Errorf("parse %s close: %w", key, err)
		}
		volume, err := r.float(5)
		if err != nil {
			return nil, fmt.Errorf("parse %s volume: %w", key, err)
		}
		out = append(out, model.FetchRow{
			Ts:     time.UnixMilli(int64(openMillis)).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
			Key:    key,
		})
	}
	return out, nil
}
