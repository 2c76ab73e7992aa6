package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceParsesKlineRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSD", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1700000000000, "100.5", "101.0", "99.5", "100.8", "12.3"],
			[1700000060000, 100.8, 102.0, 100.5, 101.5, 9.1]
		]`))
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	rows, err := src.FetchRange(context.Background(), "ETHUSD", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ETHUSD", rows[0].Key)
	assert.Equal(t, 100.5, rows[0].Open)
	assert.Equal(t, 100.8, rows[0].Close)
	assert.Equal(t, int64(1700000000000), rows[0].Ts.UnixMilli())

	assert.Equal(t, 100.8, rows[1].Open, "numeric-typed fields must parse same as string-typed ones")
}

func TestHTTPSourceNonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, time.Second)
	_, err := src.FetchRange(context.Background(), "ETHUSD", time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
