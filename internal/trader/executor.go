package trader

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/lock"
	"memecoin-trade-bot-go/internal/models"
	"memecoin-trade-bot-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionResult holds the rows written for one execution.
// Degraded is set when a BUY filled but its stop-loss could not be placed.
// Duplicate points at the recent entry that suppressed this execution.
type ExecutionResult struct {
	ExecutionID string
	Order       *models.Order
	StopLoss    *models.Order
	Degraded    bool
	Duplicate   *models.Order
}

// Executor places the orders for a BUY or SELL decision.
type Executor interface {
	Execute(ctx context.Context, decision Decision, symbol string, quantity, latestPrice float64) (*ExecutionResult, error)
}

// ExecutorOptions tunes an OrderExecutor.
type ExecutorOptions struct {
	StopLossRatio float64
	OrderTimeout  time.Duration
	DryRun        bool
	// DuplicateWindow suppresses an entry when the same side was already
	// executed for the symbol this recently. Zero disables the check.
	DuplicateWindow time.Duration
}

// OrderExecutor places market orders and the protective stop-loss, holding the
// symbol lock from the first exchange call until the rows are stored.
type OrderExecutor struct {
	client binance.RestClientInterface
	store  store.Store
	locker lock.Locker
	opts   ExecutorOptions
	now    func() time.Time
	logger *zap.Logger
}

var _ Executor = (*OrderExecutor)(nil)

func NewOrderExecutor(client binance.RestClientInterface, st store.Store, locker lock.Locker, opts ExecutorOptions, logger *zap.Logger) *OrderExecutor {
	if opts.StopLossRatio <= 0 || opts.StopLossRatio >= 1 {
		opts.StopLossRatio = 0.9
	}
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = 15 * time.Second
	}
	return &OrderExecutor{
		client: client,
		store:  st,
		locker: locker,
		opts:   opts,
		now:    time.Now,
		logger: logger.Named("executor"),
	}
}

// exchangeContext detaches from the caller so an issued order is never abandoned
// half way; only the order timeout bounds it.
func (e *OrderExecutor) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.opts.OrderTimeout)
}

// Execute places the orders for decision. HOLD is a no-op returning nil.
func (e *OrderExecutor) Execute(ctx context.Context, decision Decision, symbol string, quantity, latestPrice float64) (*ExecutionResult, error) {
	if decision != DecisionBuy && decision != DecisionSell {
		return nil, nil
	}

	unlock, err := e.locker.Lock(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", symbol, err)
	}
	defer unlock()

	side := string(decision)
	recent, err := e.recentEntry(ctx, symbol, side)
	if err != nil {
		return nil, err
	}
	if recent != nil {
		e.logger.Warn("Duplicate entry suppressed",
			zap.String("symbol", symbol),
			zap.String("decision", side),
			zap.String("previous_execution_id", recent.ExecutionID),
			zap.Time("previous_at", recent.Timestamp))
		return &ExecutionResult{Duplicate: recent}, nil
	}

	execID := uuid.NewString()
	l := e.logger.With(
		zap.String("execution_id", execID),
		zap.String("symbol", symbol),
		zap.String("decision", string(decision)),
		zap.Float64("quantity", quantity),
	)

	if decision == DecisionSell {
		return e.sell(ctx, l, execID, symbol, quantity, latestPrice)
	}
	return e.buy(ctx, l, execID, symbol, quantity, latestPrice)
}

// recentEntry returns the latest market order for symbol when it has the same
// side and falls inside the duplicate window. Callers must hold the symbol lock.
func (e *OrderExecutor) recentEntry(ctx context.Context, symbol, side string) (*models.Order, error) {
	if e.opts.DuplicateWindow <= 0 {
		return nil, nil
	}
	// One execution writes at most two rows, so the latest two include its entry.
	orders, err := e.store.QueryOrders(ctx, store.Filter{Key: symbol, Descending: true, Limit: 2})
	if err != nil {
		return nil, fmt.Errorf("read recent orders for %s: %w", symbol, err)
	}
	for i := range orders {
		o := orders[i]
		if o.Type != models.TypeMarket {
			continue
		}
		if o.Side == side && e.now().Sub(o.Timestamp) < e.opts.DuplicateWindow {
			return &o, nil
		}
		return nil, nil
	}
	return nil, nil
}

func (e *OrderExecutor) sell(ctx context.Context, l *zap.Logger, execID, symbol string, quantity, latestPrice float64) (*ExecutionResult, error) {
	exCtx, cancel := e.exchangeContext(ctx)
	resp, err := e.client.MarketSell(exCtx, symbol, quantity)
	cancel()
	if err != nil {
		l.Error("Market sell rejected", zap.Error(err))
		return nil, &ExchangeError{Leg: LegEntry, Symbol: symbol, Err: err}
	}

	order := e.fillOrder(resp, execID, symbol, models.SideSell, quantity, latestPrice)
	result := &ExecutionResult{ExecutionID: execID, Order: order}

	if err := e.persist(ctx, &store.Execution{Entry: order}); err != nil {
		l.Error("Sell filled but could not be stored", zap.Bool("critical", true), zap.Error(err))
		return result, err
	}

	l.Info("Sell executed", zap.Float64("fill_price", order.FillPrice), zap.Int64("exchange_order_id", order.ExchangeOrderID))
	return result, nil
}

func (e *OrderExecutor) buy(ctx context.Context, l *zap.Logger, execID, symbol string, quantity, latestPrice float64) (*ExecutionResult, error) {
	exCtx, cancel := e.exchangeContext(ctx)
	resp, err := e.client.MarketBuy(exCtx, symbol, quantity)
	cancel()
	if err != nil {
		l.Error("Market buy rejected", zap.Error(err))
		return nil, &ExchangeError{Leg: LegEntry, Symbol: symbol, Err: err}
	}

	entry := e.fillOrder(resp, execID, symbol, models.SideBuy, quantity, latestPrice)
	result := &ExecutionResult{ExecutionID: execID, Order: entry}

	// Exactly one stop-loss attempt per filled BUY.
	stopPrice := latestPrice * e.opts.StopLossRatio
	exCtx, cancel = e.exchangeContext(ctx)
	stopResp, stopErr := e.client.PlaceStopLoss(exCtx, symbol, entry.Quantity, stopPrice)
	cancel()

	exec := &store.Execution{Entry: entry}
	if stopErr == nil {
		exec.StopLoss = e.stopOrder(stopResp, execID, symbol, entry.Quantity, stopPrice)
		result.StopLoss = exec.StopLoss
	} else {
		exec.StopFailure = fmt.Sprintf("stop-loss rejected: %v", stopErr)
		result.Degraded = true
	}

	if err := e.persist(ctx, exec); err != nil {
		l.Error("Buy filled but could not be stored", zap.Bool("critical", true), zap.Error(err))
		return result, err
	}

	if stopErr != nil {
		l.Error("Position is unprotected: stop-loss placement failed",
			zap.Bool("critical", true),
			zap.Uint("order_id", entry.ID),
			zap.Float64("stop_price", stopPrice),
			zap.Error(stopErr))
		return result, &ExchangeError{Leg: LegStopLoss, Symbol: symbol, Err: stopErr}
	}

	l.Info("Buy executed with stop-loss",
		zap.Float64("fill_price", entry.FillPrice),
		zap.Float64("stop_price", result.StopLoss.StopPrice),
		zap.Int64("exchange_order_id", entry.ExchangeOrderID))
	return result, nil
}

func (e *OrderExecutor) persist(ctx context.Context, exec *store.Execution) error {
	pCtx, cancel := e.exchangeContext(ctx)
	defer cancel()
	if err := e.store.CommitExecution(pCtx, exec); err != nil {
		return fmt.Errorf("persist execution %s: %w", exec.Entry.ExecutionID, err)
	}
	return nil
}

func (e *OrderExecutor) timestamp(transactTime int64) time.Time {
	if transactTime > 0 {
		return time.UnixMilli(transactTime).UTC()
	}
	return e.now().UTC()
}

// fillOrder converts a market fill. Paper fills carry no quote quantity, so the
// collected price stands in for the fill price.
func (e *OrderExecutor) fillOrder(resp *binance.CreateOrderResponse, execID, symbol, side string, quantity, latestPrice float64) *models.Order {
	fillPrice := resp.AvgPrice()
	if fillPrice == 0 {
		fillPrice = latestPrice
	}
	executed := resp.ExecutedQty()
	if executed <= 0 {
		executed = quantity
	}
	return &models.Order{
		ExecutionID:     execID,
		Symbol:          symbol,
		Side:            side,
		Type:            models.TypeMarket,
		Quantity:        executed,
		FillPrice:       fillPrice,
		ExchangeOrderID: resp.OrderID,
		Status:          resp.Status,
		Timestamp:       e.timestamp(resp.TransactTime),
		IsSimulation:    e.opts.DryRun,
	}
}

func (e *OrderExecutor) stopOrder(resp *binance.CreateOrderResponse, execID, symbol string, quantity, stopPrice float64) *models.Order {
	if sent, err := strconv.ParseFloat(resp.StopPrice, 64); err == nil && sent > 0 {
		stopPrice = sent
	}
	return &models.Order{
		ExecutionID:     execID,
		Symbol:          symbol,
		Side:            models.SideSell,
		Type:            models.TypeStopLoss,
		Quantity:        quantity,
		StopPrice:       stopPrice,
		ExchangeOrderID: resp.OrderID,
		Status:          resp.Status,
		Timestamp:       e.timestamp(resp.TransactTime),
		IsSimulation:    e.opts.DryRun,
	}
}
