package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CycleSummary is the last known result of a watched coin.
type CycleSummary struct {
	At     time.Time    `json:"at"`
	Result *CycleResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Status describes a running engine.
type Status struct {
	UUID      string                  `json:"uuid"`
	Name      string                  `json:"name"`
	Strategy  string                  `json:"strategy"`
	DryRun    bool                    `json:"dry_run"`
	StartTime string                  `json:"start_time"`
	Uptime    string                  `json:"uptime"`
	Watchlist []config.WatchItem      `json:"watchlist"`
	LastCycle map[string]CycleSummary `json:"last_cycle"`
}

// Engine runs the monitor cycle over the configured watchlist on every tick.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger     *zap.Logger
	cfg        *config.Config
	restClient binance.RestClientInterface
	store      store.Store
	cycle      *MonitorCycle

	mu   sync.RWMutex
	last map[string]CycleSummary
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, restClient binance.RestClientInterface, st store.Store, cycle *MonitorCycle) *Engine {
	return &Engine{
		UUID:       uuid.NewString(),
		Name:       "memecoin-trader",
		StartTime:  time.Now(),
		logger:     logger.Named("engine"),
		cfg:        cfg,
		restClient: restClient,
		store:      st,
		cycle:      cycle,
		last:       make(map[string]CycleSummary),
	}
}

// Cycle returns the monitor cycle driven by the engine.
func (e *Engine) Cycle() *MonitorCycle {
	return e.cycle
}

// Run scouts once, then on every tick, and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing trading engine...")
	if err := e.initialize(ctx); err != nil {
		// The client loads rules per symbol on the first order, so the loop can still run.
		e.logger.Warn("Exchange rules not preloaded", zap.Error(err))
	}

	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting monitor loop",
		zap.Duration("interval", interval),
		zap.Int("watchlist", len(e.cfg.Trading.Watchlist)))

	e.Scout(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
			e.Scout(ctx)
		}
	}
}

// initialize caches the exchange trading rules used to format orders.
func (e *Engine) initialize(ctx context.Context) error {
	e.logger.Info("Fetching exchange information...")
	info, err := e.restClient.GetExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("could not get exchange info: %w", err)
	}
	e.logger.Info("Cached exchange information", zap.Int("symbols", len(info.Symbols)))
	return nil
}

// Sentiment is the average stored score for coinID, or the configured default
// when nothing has been recorded.
func (e *Engine) Sentiment(ctx context.Context, coinID string) (float64, error) {
	avg, ok, err := e.store.Aggregate(ctx, store.EntitySentiment, store.OpAvg, store.Filter{Key: coinID})
	if err != nil {
		return 0, err
	}
	if !ok {
		return e.cfg.Trading.DefaultSentiment, nil
	}
	return avg, nil
}

type scoutResult struct {
	coinID  string
	summary CycleSummary
}

// Scout runs one cycle per watched coin. Coins are independent so they run in
// parallel; placement for a symbol is still serialized by the executor.
func (e *Engine) Scout(ctx context.Context) map[string]CycleSummary {
	watchlist := e.cfg.Trading.Watchlist
	results := make(chan scoutResult, len(watchlist))

	var wg sync.WaitGroup
	for _, item := range watchlist {
		wg.Add(1)
		go func(item config.WatchItem) {
			defer wg.Done()
			results <- scoutResult{coinID: item.CoinID, summary: e.monitorOne(ctx, item)}
		}(item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]CycleSummary, len(watchlist))
	for r := range results {
		out[r.coinID] = r.summary
	}

	e.mu.Lock()
	for k, v := range out {
		e.last[k] = v
	}
	e.mu.Unlock()

	e.logger.Info("Scout cycle complete.", zap.Int("coins", len(out)))
	return out
}

func (e *Engine) monitorOne(ctx context.Context, item config.WatchItem) CycleSummary {
	l := e.logger.With(zap.String("coin_id", item.CoinID), zap.String("symbol", item.Symbol))
	summary := CycleSummary{At: time.Now().UTC()}

	sentiment, err := e.Sentiment(ctx, item.CoinID)
	if err != nil {
		l.Error("Failed to read sentiment", zap.Error(err))
		summary.Error = err.Error()
		return summary
	}

	res, err := e.cycle.Monitor(ctx, Request{
		CoinID:         item.CoinID,
		Symbol:         item.Symbol,
		Quantity:       e.cfg.Trading.Quantity,
		SentimentScore: sentiment,
		StartHour:      e.cfg.Trading.StartHour,
		EndHour:        e.cfg.Trading.EndHour,
	})
	summary.Result = res
	if err != nil {
		summary.Error = err.Error()
		var exErr *ExchangeError
		if errors.As(err, &exErr) {
			l.Error("Monitor cycle hit an exchange error", zap.String("leg", string(exErr.Leg)), zap.Error(err))
		} else {
			l.Warn("Monitor cycle failed", zap.Error(err))
		}
	}
	return summary
}

// Status reports identity, uptime and the last cycle per coin.
func (e *Engine) Status() Status {
	e.mu.RLock()
	last := make(map[string]CycleSummary, len(e.last))
	for k, v := range e.last {
		last[k] = v
	}
	e.mu.RUnlock()

	return Status{
		UUID:      e.UUID,
		Name:      e.Name,
		Strategy:  e.cycle.Strategy().Name(),
		DryRun:    e.cfg.Trading.DryRun,
		StartTime: e.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(e.StartTime).String(),
		Watchlist: e.cfg.Trading.Watchlist,
		LastCycle: last,
	}
}
