// Package coingecko fetches recent price history for a coin from the CoinGecko API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/transport"

	"go.uber.org/zap"
)

// SeriesPoint is one (timestamp, price) sample, with the traded volume when known.
type SeriesPoint struct {
	Timestamp time.Time
	Price     float64
	Volume    float64
}

// PriceSource is the capability the price collector consumes.
type PriceSource interface {
	FetchSeries(ctx context.Context, coinID string) ([]SeriesPoint, error)
}

// Client is a CoinGecko REST client.
type Client struct {
	requester  *transport.Requester
	apiKey     string
	vsCurrency string
	days       int
	logger     *zap.Logger
}

var _ PriceSource = (*Client)(nil)

// NewClient creates a CoinGecko client from configuration.
func NewClient(cfg *config.CoinGecko, logger *zap.Logger) *Client {
	requester := transport.New(transport.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.RateLimitBurst,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	return newClient(requester, cfg.ApiKey, cfg.VsCurrency, cfg.Days, logger)
}

func newClient(requester *transport.Requester, apiKey, vsCurrency string, days int, logger *zap.Logger) *Client {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if days <= 0 {
		days = 1
	}
	return &Client{
		requester:  requester,
		apiKey:     apiKey,
		vsCurrency: vsCurrency,
		days:       days,
		logger:     logger.Named("coingecko"),
	}
}

// marketChartResponse mirrors /coins/{id}/market_chart. Each entry is [unix_ms, value].
type marketChartResponse struct {
	Prices       [][2]json.Number `json:"prices"`
	TotalVolumes [][2]json.Number `json:"total_volumes"`
}

// FetchSeries returns the price history of coinID in ascending timestamp order.
// Transient failures are retried by the transport; the returned series may be short.
func (c *Client) FetchSeries(ctx context.Context, coinID string) ([]SeriesPoint, error) {
	req := c.requester.R().
		SetPathParam("id", coinID).
		SetQueryParams(map[string]string{
			"vs_currency": c.vsCurrency,
			"days":        strconv.Itoa(c.days),
		}).
		SetHeader("Accept", "application/json")
	if c.apiKey != "" {
		req.SetHeader("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.requester.DoWithRetry(ctx, http.MethodGet, "/coins/{id}/market_chart", req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market chart for %s: %w", coinID, err)
	}

	var chart marketChartResponse
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("failed to decode market chart for %s: %w", coinID, err)
	}

	volumes := make(map[int64]float64, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		ts, err1 := v[0].Int64()
		vol, err2 := v[1].Float64()
		if err1 == nil && err2 == nil {
			volumes[ts] = vol
		}
	}

	series := make([]SeriesPoint, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		ts, err := p[0].Int64()
		if err != nil {
			// Some responses carry fractional milliseconds.
			f, ferr := p[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("bad timestamp %q in market chart for %s", p[0], coinID)
			}
			ts = int64(f)
		}
		price, err := p[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("bad price %q in market chart for %s", p[1], coinID)
		}
		series = append(series, SeriesPoint{
			Timestamp: time.UnixMilli(ts).UTC(),
			Price:     price,
			Volume:    volumes[ts],
		})
	}

	sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })

	c.logger.Debug("Fetched market chart", zap.String("coin_id", coinID), zap.Int("points", len(series)))
	return series, nil
}
