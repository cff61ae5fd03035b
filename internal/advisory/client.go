// Package advisory queries an external model for a second opinion on a coin.
// Its answer is informational and never drives order placement.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/indicators"
	"memecoin-trade-bot-go/internal/transport"

	"go.uber.org/zap"
)

// Features is the input vector posted to the model.
type Features struct {
	CoinID    string   `json:"coin_id,omitempty"`
	Price     float64  `json:"price"`
	SMA9      *float64 `json:"sma9"`
	SMA21     *float64 `json:"sma21"`
	SMA50     *float64 `json:"sma50"`
	RSI       *float64 `json:"rsi"`
	Min24h    float64  `json:"min24h"`
	Max24h    float64  `json:"max24h"`
	Var24h    *float64 `json:"var24h"`
	Volume    float64  `json:"volume"`
	Sentiment float64  `json:"sentiment"`
}

// FeaturesFrom builds the model input from an indicator snapshot.
func FeaturesFrom(coinID string, snap *indicators.Snapshot, volumeChange, sentiment float64) Features {
	return Features{
		CoinID:    coinID,
		Price:     snap.Price,
		SMA9:      snap.SMA9,
		SMA21:     snap.SMA21,
		SMA50:     snap.SMA50,
		RSI:       snap.RSI,
		Min24h:    snap.Min24h,
		Max24h:    snap.Max24h,
		Var24h:    snap.Var24h,
		Volume:    volumeChange,
		Sentiment: sentiment,
	}
}

// Prediction is the model's answer.
type Prediction struct {
	Decision    string  `json:"decision"`
	Probability float64 `json:"probability"`
}

// Client posts features to the model endpoint.
type Client struct {
	requester *transport.Requester
	url       string
	logger    *zap.Logger
}

// NewClient creates an advisory client for cfg.URL.
func NewClient(cfg *config.Advisory, logger *zap.Logger) *Client {
	requester := transport.New(transport.Options{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, logger.Named("advisory-http"))
	return &Client{requester: requester, url: cfg.URL, logger: logger.Named("advisory")}
}

// Predict asks the model for a decision. features may be any JSON-encodable
// value so callers can forward a request body unchanged.
func (c *Client) Predict(ctx context.Context, features interface{}) (*Prediction, error) {
	req := c.requester.R().
		SetHeader("Content-Type", "application/json").
		SetBody(features)

	resp, err := c.requester.Do(ctx, http.MethodPost, c.url, req)
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, fmt.Errorf("failed to decode advisory response: %w", err)
	}
	p.Decision = strings.ToUpper(p.Decision)
	switch p.Decision {
	case "BUY", "SELL", "HOLD":
	default:
		return nil, fmt.Errorf("advisory returned unknown decision %q", p.Decision)
	}
	if p.Probability < 0 || p.Probability > 1 {
		return nil, fmt.Errorf("advisory returned probability %v outside [0,1]", p.Probability)
	}

	c.logger.Debug("Advisory prediction", zap.String("decision", p.Decision), zap.Float64("probability", p.Probability))
	return &p, nil
}
