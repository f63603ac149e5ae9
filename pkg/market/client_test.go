package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deagle/cryptodigest/pkg/core"
)

const (
	marketsBody = `[
		{"id":"bitcoin","name":"Bitcoin","symbol":"btc","current_price":97234.12,"price_change_percentage_24h":2.41},
		{"id":"ethereum","name":"Ethereum","symbol":"eth","current_price":3421.55,"price_change_percentage_24h":-1.12}
	]`
	globalBody = `{"data":{
		"total_market_cap":{"usd":3210000000000},
		"market_cap_change_percentage_24h_usd":1.87,
		"market_cap_percentage":{"btc":56.42}
	}}`
	fearGreedBody = `{"data":[{"value":"34","value_classification":"Fear"}]}`
)

// upstream is a scripted CoinGecko plus fear/greed stand-in.
type upstream struct {
	server *httptest.Server
	paths  []string

	marketsStatus   int
	globalStatus    int
	fearGreedStatus int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()

	u := &upstream{
		marketsStatus:   http.StatusOK,
		globalStatus:    http.StatusOK,
		fearGreedStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/coins/markets", func(w http.ResponseWriter, r *http.Request) {
		u.paths = append(u.paths, r.URL.Path)
		w.WriteHeader(u.marketsStatus)
		if u.marketsStatus == http.StatusOK {
			w.Write([]byte(marketsBody))
		}
	})
	mux.HandleFunc("/global", func(w http.ResponseWriter, r *http.Request) {
		u.paths = append(u.paths, r.URL.Path)
		w.WriteHeader(u.globalStatus)
		if u.globalStatus == http.StatusOK {
			w.Write([]byte(globalBody))
		}
	})
	mux.HandleFunc("/fng", func(w http.ResponseWriter, r *http.Request) {
		u.paths = append(u.paths, r.URL.Path)
		w.WriteHeader(u.fearGreedStatus)
		if u.fearGreedStatus == http.StatusOK {
			w.Write([]byte(fearGreedBody))
		}
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)

	return u
}

// newTestClient wires the client to the scripted upstream and records
// sleeps instead of performing them.
func newTestClient(u *upstream, sleeps *[]time.Duration) *Client {
	return NewClient(u.server.URL, u.server.URL+"/fng", testLogger(),
		WithDelays(5*time.Second, 120*time.Second),
		WithSleep(func(_ context.Context, d time.Duration) {
			*sleeps = append(*sleeps, d)
		}))
}

func TestFetchCallOrderAndDelays(t *testing.T) {
	u := newUpstream(t)
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)

	snapshot, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/coins/markets", "/global", "/fng"}, u.paths)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps)

	assert.Equal(t, 97234.12, snapshot.BTCPrice)
	assert.Equal(t, 2.41, snapshot.BTCChange24h)
	assert.Equal(t, 3.21e12, snapshot.TotalMarketCap)
	assert.Equal(t, 1.87, snapshot.MarketCapChange24h)
	assert.Equal(t, 56.42, snapshot.BTCDominance)
	require.NotNil(t, snapshot.FearGreed)
	assert.Equal(t, 34, *snapshot.FearGreed)
	require.Len(t, snapshot.TopCoins, 2)
	assert.Equal(t, "bitcoin", snapshot.TopCoins[0].ID)
}

func TestFetchRateLimitedAborts(t *testing.T) {
	u := newUpstream(t)
	u.marketsStatus = http.StatusTooManyRequests
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)

	snapshot, err := client.Fetch(context.Background())

	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Equal(t, []string{"/coins/markets"}, u.paths, "the remaining calls are skipped")
	assert.Contains(t, sleeps, 120*time.Second, "the cooldown is observed before aborting")
}

func TestFetchRateLimitedOnGlobal(t *testing.T) {
	u := newUpstream(t)
	u.globalStatus = http.StatusTooManyRequests
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)

	_, err := client.Fetch(context.Background())

	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Equal(t, []string{"/coins/markets", "/global"}, u.paths)
}

func TestFetchHardErrorOnBadStatus(t *testing.T) {
	u := newUpstream(t)
	u.globalStatus = http.StatusInternalServerError
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)

	snapshot, err := client.Fetch(context.Background())

	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, core.ErrUpstreamStatus)
}

func TestFetchSentimentDegradesGracefully(t *testing.T) {
	u := newUpstream(t)
	u.fearGreedStatus = http.StatusServiceUnavailable
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)

	snapshot, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Nil(t, snapshot.FearGreed, "sentiment failure degrades the field only")
	assert.Equal(t, 97234.12, snapshot.BTCPrice)
}

func TestFetchNetworkFailure(t *testing.T) {
	u := newUpstream(t)
	var sleeps []time.Duration
	client := newTestClient(u, &sleeps)
	u.server.Close()

	snapshot, err := client.Fetch(context.Background())

	assert.Nil(t, snapshot)
	assert.Error(t, err)
}
