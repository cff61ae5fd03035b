package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memecoin-trade-bot-go/internal/coingecko"
	"memecoin-trade-bot-go/internal/models"
	"memecoin-trade-bot-go/internal/store"

	"go.uber.org/zap"
)

// Observation is the signal extracted from one collection.
type Observation struct {
	CoinID       string    `json:"coin_id"`
	LatestPrice  float64   `json:"latest_price"`
	VolumeChange float64   `json:"volume_change"`
	Timestamp    time.Time `json:"timestamp"`
}

// Collector fetches the latest price move for a coin and records it.
type Collector interface {
	Collect(ctx context.Context, coinID string) (*Observation, error)
}

// PriceCollector reads the last trading day from a price source and appends
// the newest point to the store.
type PriceCollector struct {
	source  coingecko.PriceSource
	store   store.Store
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

var _ Collector = (*PriceCollector)(nil)

// NewPriceCollector creates a collector; timeout <= 0 leaves the caller's deadline alone.
func NewPriceCollector(source coingecko.PriceSource, st store.Store, timeout time.Duration, logger *zap.Logger) *PriceCollector {
	return &PriceCollector{
		source:  source,
		store:   st,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.Named("collector"),
		last:    make(map[string]time.Time),
	}
}

// Collect computes latest price and volume_change = latest/previous - 1.
func (c *PriceCollector) Collect(ctx context.Context, coinID string) (*Observation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	series, err := c.source.FetchSeries(ctx, coinID)
	if err != nil {
		return nil, &CollectionError{CoinID: coinID, Reason: "price source unavailable", Err: err}
	}
	if len(series) < 2 {
		return nil, &CollectionError{CoinID: coinID, Reason: fmt.Sprintf("need at least 2 price points, got %d", len(series))}
	}

	latest := series[len(series)-1].Price
	previous := series[len(series)-2].Price
	if !(latest > 0) || !(previous > 0) {
		return nil, &CollectionError{CoinID: coinID, Reason: fmt.Sprintf("non-positive price (previous %v, latest %v)", previous, latest)}
	}

	point := &models.PricePoint{
		CoinID:       coinID,
		Price:        latest,
		VolumeChange: latest/previous - 1,
	}
	if err := c.record(ctx, point); err != nil {
		return nil, fmt.Errorf("record price for %s: %w", coinID, err)
	}

	obs := &Observation{
		CoinID:       coinID,
		LatestPrice:  point.Price,
		VolumeChange: point.VolumeChange,
		Timestamp:    point.Timestamp,
	}

	c.logger.Debug("Collected price",
		zap.String("coin_id", coinID),
		zap.Float64("price", obs.LatestPrice),
		zap.Float64("volume_change", obs.VolumeChange),
		zap.Int("points", len(series)))
	return obs, nil
}

// record stamps and appends p while holding the collector lock, so points for
// a coin reach the store in timestamp order. A stamp behind the coin's latest
// point (clock step, restart) is raised to it.
func (c *PriceCollector) record(ctx context.Context, p *models.PricePoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[p.CoinID]
	if !ok {
		latest, err := c.store.QueryPrices(ctx, store.Filter{Key: p.CoinID, Descending: true, Limit: 1})
		if err != nil {
			return err
		}
		if len(latest) > 0 {
			last = latest[0].Timestamp
		}
	}

	p.Timestamp = c.now().UTC()
	if p.Timestamp.Before(last) {
		p.Timestamp = last
	}
	if err := c.store.AppendPrice(ctx, p); err != nil {
		return err
	}
	c.last[p.CoinID] = p.Timestamp
	return nil
}
