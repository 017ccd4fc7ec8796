// Package feargreed fetches the crowd-sentiment index from
// alternative.me. The index feeds regime classification only; failures
// degrade to a neutral reading upstream.
package feargreed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	xhttp "CoinSight/pkg/http"
)

// Client fetches the fear & greed index.
type Client struct {
	baseURL string
	http    *xhttp.Client
}

// New creates a fear & greed client.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// Reading is one index sample.
type Reading struct {
	Value          int
	Classification string
	Timestamp      time.Time
}

// Latest returns the most recent index reading (0..100).
func (c *Client) Latest(ctx context.Context) (Reading, error) {
	var raw struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
			Timestamp      string `json:"timestamp"`
		} `json:"data"`
	}
	err := c.http.GetJSON(ctx, c.baseURL+"/fng/",
		map[string][]string{"limit": {"1"}}, nil, &raw)
	if err != nil {
		return Reading{}, fmt.Errorf("fear greed: %w", err)
	}
	if len(raw.Data) == 0 {
		return Reading{}, fmt.Errorf("fear greed: empty response")
	}
	d := raw.Data[0]
	v, err := strconv.Atoi(d.Value)
	if err != nil {
		return Reading{}, fmt.Errorf("fear greed: parse value %q: %w", d.Value, err)
	}
	r := Reading{Value: v, Classification: d.Classification}
	if sec, err := strconv.ParseInt(d.Timestamp, 10, 64); err == nil {
		r.Timestamp = time.Unix(sec, 0).UTC()
	}
	return r, nil
}
