// Package binance implements the primary-venue REST client: batch
// ticker prices, 24h stats for universe resolution, and kline history.
// Responses are normalized to domain shapes at this boundary; no
// venue-specific type leaks past it.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"CoinSight/internal/domain/models"
	xhttp "CoinSight/pkg/http"
)

const providerName = "binance"

// Client talks to the Binance public REST API.
type Client struct {
	baseURL     string
	quoteClient *xhttp.Client // short timeout, live-quote endpoints
	klineClient *xhttp.Client // longer timeout, history endpoints
}

// New creates a Binance REST client.
func New(baseURL string, quoteTimeout, klineTimeout time.Duration) *Client {
	if quoteTimeout <= 0 {
		quoteTimeout = 3 * time.Second
	}
	if klineTimeout <= 0 {
		klineTimeout = 15 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		quoteClient: xhttp.NewClient(xhttp.WithTimeout(quoteTimeout)),
		klineClient: xhttp.NewClient(xhttp.WithTimeout(klineTimeout)),
	}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Price returns the latest price for a single trading pair. This is the
// low-latency direct path used by the quote cache when a ticker hint is
// available.
func (c *Client) Price(ctx context.Context, pair string) (float64, error) {
	var tp tickerPrice
	err := c.quoteClient.GetJSON(ctx, c.baseURL+"/api/v3/ticker/price",
		map[string][]string{"symbol": {pair}}, nil, &tp)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: %w", pair, err)
	}
	p, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: parse %q: %w", pair, tp.Price, err)
	}
	return p, nil
}

// Ticker24h carries the 24h rolling stats used for universe filtering.
type Ticker24h struct {
	Pair        string
	LastPrice   float64
	QuoteVolume float64 // 24h volume in the quote currency (USDT)
	ChangePct   float64
}

// Tickers24h returns 24h stats for the given pairs. Unknown pairs are
// simply absent from the result.
func (c *Client) Tickers24h(ctx context.Context, pairs []string) ([]Ticker24h, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	sym, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("binance tickers: %w", err)
	}
	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	err = c.klineClient.GetJSON(ctx, c.baseURL+"/api/v3/ticker/24hr",
		map[string][]string{"symbols": {string(sym)}}, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("binance tickers: %w", err)
	}
	out := make([]Ticker24h, 0, len(raw))
	for _, r := range raw {
		t := Ticker24h{Pair: r.Symbol}
		t.LastPrice, _ = strconv.ParseFloat(r.LastPrice, 64)
		t.QuoteVolume, _ = strconv.ParseFloat(r.QuoteVolume, 64)
		t.ChangePct, _ = strconv.ParseFloat(r.PriceChangePercent, 64)
		out = append(out, t)
	}
	return out, nil
}

// Klines returns historical bars for asset's pair, ascending by open
// time, normalized to Candle.
func (c *Client) Klines(ctx context.Context, asset, pair, interval string, limit int) ([]models.Candle, error) {
	var raw [][]json.RawMessage
	err := c.klineClient.GetJSON(ctx, c.baseURL+"/api/v3/klines",
		map[string][]string{
			"symbol":   {pair},
			"interval": {interval},
			"limit":    {strconv.Itoa(limit)},
		}, nil, &raw)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", pair, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		// kline layout: [openTime, open, high, low, close, volume, ...]
		if len(k) < 6 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			continue
		}
		cd := models.Candle{
			Asset:     asset,
			Timestamp: time.UnixMilli(openMs).UTC(),
		}
		ok := true
		for i, dst := range []*float64{&cd.Open, &cd.High, &cd.Low, &cd.Close, &cd.Volume} {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if !ok {
			continue
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return providerName }
