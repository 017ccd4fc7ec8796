// Package coingecko implements the aggregator-side REST client used as
// the fallback quote source and for market metadata the venue does not
// carry (market cap, coin ids). Calls are throttled by a local token
// bucket; an empty bucket is reported the same way as an upstream 429
// so retry handling stays in one place.
package coingecko

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CoinSight/internal/domain/models"
	xhttp "CoinSight/pkg/http"
)

const providerName = "coingecko"

// Client talks to the CoinGecko REST API v3. Spot-price lookups sit on
// the live path and get a short deadline; OHLC and market listings are
// bulk calls and get a longer one.
type Client struct {
	baseURL string
	apiKey  string
	price   *xhttp.Client
	market  *xhttp.Client
	bucket  *tokenBucket
}

// New creates a CoinGecko client. rateCapacity and ratePerSec size the
// local token bucket; apiKey may be empty for the public tier.
func New(baseURL, apiKey string, priceTimeout, marketTimeout time.Duration, rateCapacity, ratePerSec float64) *Client {
	if priceTimeout <= 0 {
		priceTimeout = 5 * time.Second
	}
	if marketTimeout <= 0 {
		marketTimeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		price:   xhttp.NewClient(xhttp.WithTimeout(priceTimeout)),
		market:  xhttp.NewClient(xhttp.WithTimeout(marketTimeout)),
		bucket:  newTokenBucket(rateCapacity, ratePerSec),
	}
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-cg-demo-api-key": c.apiKey}
}

// throttle consumes a token or returns a rate-limit error carrying the
// wait until the next token, mirroring an upstream 429.
func (c *Client) throttle() error {
	ok, wait := c.bucket.take()
	if ok {
		return nil
	}
	return &xhttp.StatusError{Code: 429, Body: "local rate limit", RetryAfter: wait}
}

// SimplePrices returns USD spot prices keyed by coin id.
func (c *Client) SimplePrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	if err := c.throttle(); err != nil {
		return nil, err
	}
	var raw map[string]map[string]float64
	err := c.price.GetJSON(ctx, c.baseURL+"/api/v3/simple/price",
		map[string][]string{
			"ids":           {strings.Join(ids, ",")},
			"vs_currencies": {"usd"},
		}, c.headers(), &raw)
	if err != nil {
		return nil, fmt.Errorf("coingecko simple price: %w", err)
	}
	out := make(map[string]float64, len(raw))
	for id, cur := range raw {
		if usd, ok := cur["usd"]; ok {
			out[id] = usd
		}
	}
	return out, nil
}

// OHLC returns candles for a coin over the last days, ascending by
// time. The endpoint carries no volume, so Volume is zero.
func (c *Client) OHLC(ctx context.Context, asset, id string, days int) ([]models.Candle, error) {
	if err := c.throttle(); err != nil {
		return nil, err
	}
	var raw [][]float64
	err := c.market.GetJSON(ctx, c.baseURL+"/api/v3/coins/"+id+"/ohlc",
		map[string][]string{
			"vs_currency": {"usd"},
			"days":        {strconv.Itoa(days)},
		}, c.headers(), &raw)
	if err != nil {
		return nil, fmt.Errorf("coingecko ohlc %s: %w", id, err)
	}
	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		// row layout: [ts_ms, open, high, low, close]
		if len(row) < 5 {
			continue
		}
		candles = append(candles, models.Candle{
			Asset:     asset,
			Timestamp: time.UnixMilli(int64(row[0])).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
		})
	}
	return candles, nil
}

// Markets returns listing metadata (market cap, 24h volume) for the
// given coin ids.
func (c *Client) Markets(ctx context.Context, ids []string) ([]models.CoinMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := c.throttle(); err != nil {
		return nil, err
	}
	var raw []struct {
		ID          string  `json:"id"`
		Symbol      string  `json:"symbol"`
		MarketCap   float64 `json:"market_cap"`
		TotalVolume float64 `json:"total_volume"`
	}
	err := c.market.GetJSON(ctx, c.baseURL+"/api/v3/coins/markets",
		map[string][]string{
			"vs_currency": {"usd"},
			"ids":         {strings.Join(ids, ",")},
			"per_page":    {strconv.Itoa(len(ids))},
		}, c.headers(), &raw)
	if err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}
	out := make([]models.CoinMeta, 0, len(raw))
	for _, r := range raw {
		out = append(out, models.CoinMeta{
			Asset:     r.ID,
			Symbol:    strings.ToUpper(r.Symbol),
			MarketCap: r.MarketCap,
			Volume24h: r.TotalVolume,
		})
	}
	return out, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return providerName }
