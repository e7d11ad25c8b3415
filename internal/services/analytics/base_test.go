package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"CardSignals/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPQuoteSourceReturnsPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body quoteReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Charizard", body.Name)
		_, _ = w.Write([]byte(`{"price": 412.5}`))
	}))
	defer srv.Close()

	src := NewHTTPQuoteSource("pricecharting", srv.URL, time.Second)
	q, err := src.Quote(context.Background(), models.FairValueRequest{Name: "Charizard", Set: "base1", Grade: "RAW", Language: "EN"})
	require.NoError(t, err)
	require.NotNil(t, q.Price)
	assert.Equal(t, 412.5, *q.Price)
	assert.Equal(t, "pricecharting", q.Source)
}

func TestHTTPQuoteSourceNullPriceIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"price": null}`))
	}))
	defer srv.Close()

	q, err := NewHTTPQuoteSource("x", srv.URL, time.Second).Quote(context.Background(), models.FairValueRequest{})
	require.NoError(t, err)
	assert.Nil(t, q.Price)
}

func TestHTTPQuoteSourceRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	q, err := NewHTTPQuoteSource("x", srv.URL, time.Second).Quote(context.Background(), models.FairValueRequest{})
	require.Error(t, err)
	assert.Nil(t, q.Price)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPQuoteSourceDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPQuoteSource("x", srv.URL, time.Second).Quote(context.Background(), models.FairValueRequest{})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
