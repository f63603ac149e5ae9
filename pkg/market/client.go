// Package market fetches and caches aggregated cryptocurrency market
// data from CoinGecko and the alternative.me fear and greed index.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/logger"
)

// The public endpoints throttle unidentified clients harder.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	defaultRequestDelay = 5 * time.Second
	defaultRateCooldown = 120 * time.Second
)

// SleepFunc pauses for the given duration or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// Client performs the three-call fetch protocol: top coins by market
// capitalization, global aggregates, and the sentiment index.
type Client struct {
	http         *http.Client
	coingeckoURL string
	fearGreedURL string
	delay        time.Duration
	cooldown     time.Duration
	sleep        SleepFunc
	log          logger.Logger
}

// ClientOption configures a Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithDelays sets the inter-call delay and the rate-limit cooldown.
func WithDelays(delay, cooldown time.Duration) ClientOption {
	return func(c *Client) {
		c.delay = delay
		c.cooldown = cooldown
	}
}

// WithSleep replaces the sleep function, allowing tests to run without
// real waits.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *Client) {
		c.sleep = sleep
	}
}

func NewClient(coingeckoURL, fearGreedURL string, log logger.Logger, options ...ClientOption) *Client {
	client := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		coingeckoURL: strings.TrimRight(coingeckoURL, "/"),
		fearGreedURL: fearGreedURL,
		delay:        defaultRequestDelay,
		cooldown:     defaultRateCooldown,
		sleep:        contextSleep,
		log:          log,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

type globalData struct {
	Data struct {
		TotalMarketCap              map[string]float64 `json:"total_market_cap"`
		MarketCapChangePercentage24 float64            `json:"market_cap_change_percentage_24h_usd"`
		MarketCapPercentage         map[string]float64 `json:"market_cap_percentage"`
	} `json:"data"`
}

type fearGreedData struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Fetch retrieves a fresh snapshot. The market listing and global
// aggregate calls are mandatory: a 429 from either triggers the
// cooldown and returns core.ErrRateLimited, any other non-200 status is
// a hard error. The sentiment call is best effort and only degrades the
// snapshot's FearGreed field.
func (c *Client) Fetch(ctx context.Context) (*core.Snapshot, error) {
	c.sleep(ctx, c.delay)

	var coins []core.Coin
	if err := c.getRequired(ctx, c.marketsURL(), "market listing", &coins); err != nil {
		return nil, err
	}

	c.sleep(ctx, c.delay)

	var global globalData
	if err := c.getRequired(ctx, c.coingeckoURL+"/global", "global aggregate", &global); err != nil {
		return nil, err
	}

	btc, found := lo.Find(coins, func(coin core.Coin) bool {
		return coin.ID == "bitcoin"
	})
	if !found {
		return nil, fmt.Errorf("%w: bitcoin missing from market listing", core.ErrUpstreamStatus)
	}

	snapshot := &core.Snapshot{
		BTCPrice:           btc.Price,
		BTCChange24h:       btc.Change24h,
		TotalMarketCap:     global.Data.TotalMarketCap["usd"],
		MarketCapChange24h: global.Data.MarketCapChangePercentage24,
		BTCDominance:       global.Data.MarketCapPercentage["btc"],
		TopCoins:           coins,
	}

	snapshot.FearGreed = c.fetchFearGreed(ctx)

	return snapshot, nil
}

func (c *Client) marketsURL() string {
	return c.coingeckoURL + "/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=10&sparkline=false&price_change_percentage=24h"
}

// getRequired fetches one of the two mandatory endpoints.
func (c *Client) getRequired(ctx context.Context, url, name string, out any) error {
	status, err := c.getJSON(ctx, url, out)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		c.log.Warnf("%s rate limited, cooling down for %s", name, c.cooldown)
		c.sleep(ctx, c.cooldown)
		return fmt.Errorf("%s: %w", name, core.ErrRateLimited)
	default:
		return fmt.Errorf("%w: %s returned %d", core.ErrUpstreamStatus, name, status)
	}
}

// fetchFearGreed returns the sentiment index, or nil when the provider
// is unavailable or returns garbage.
func (c *Client) fetchFearGreed(ctx context.Context) *int {
	var payload fearGreedData

	status, err := c.getJSON(ctx, c.fearGreedURL, &payload)
	if err != nil || status != http.StatusOK || len(payload.Data) == 0 {
		c.log.WithFields(map[string]any{"status": status, "error": err}).
			Warn("sentiment index unavailable, degrading snapshot")
		return nil
	}

	value, err := strconv.Atoi(payload.Data[0].Value)
	if err != nil {
		c.log.WithError(err).Warn("sentiment index not numeric, degrading snapshot")
		return nil
	}

	return &value
}

// getJSON performs a GET and decodes the body on 200. Non-200 responses
// are returned by status without touching out.
func (c *Client) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.StatusCode, nil
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
