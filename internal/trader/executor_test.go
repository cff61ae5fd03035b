package trader

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/lock"
	"memecoin-trade-bot-go/internal/models"
	"memecoin-trade-bot-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// freeLocker grants every lock immediately and ignores the context.
type freeLocker struct{}

func (freeLocker) Lock(ctx context.Context, key string) (func(), error) { return func() {}, nil }

func near(expected float64) interface{} {
	return mock.MatchedBy(func(v float64) bool { return math.Abs(v-expected) < 1e-9 })
}

func newTestExecutor(client binance.RestClientInterface, opts ExecutorOptions) (*OrderExecutor, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewOrderExecutor(client, st, lock.NewMemoryLocker(), opts, zap.NewNop()), st
}

func allOrders(t *testing.T, st store.Store) []models.Order {
	orders, err := st.QueryOrders(context.Background(), store.Filter{})
	require.NoError(t, err)
	return orders
}

func TestOrderExecutor_BuyWithStopLoss(t *testing.T) {
	client := new(MockRestClient)
	client.On("MarketBuy", mock.Anything, "DOGEUSDT", 100.0).Return(&binance.CreateOrderResponse{
		Symbol: "DOGEUSDT", OrderID: 11, Status: "FILLED", TransactTime: 1740787200000,
		ExecutedQuantity: "100", CummulativeQuoteQty: "21",
	}, nil).Once()
	client.On("PlaceStopLoss", mock.Anything, "DOGEUSDT", 100.0, near(0.18)).Return(&binance.CreateOrderResponse{
		Symbol: "DOGEUSDT", OrderID: 12, Status: "NEW", StopPrice: "0.18", TransactTime: 1740787200001,
	}, nil).Once()

	exec, st := newTestExecutor(client, ExecutorOptions{StopLossRatio: 0.9})

	res, err := exec.Execute(context.Background(), DecisionBuy, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)
	client.AssertExpectations(t)

	assert.False(t, res.Degraded)
	require.NotNil(t, res.Order)
	require.NotNil(t, res.StopLoss)
	assert.Equal(t, models.SideBuy, res.Order.Side)
	assert.Equal(t, models.TypeMarket, res.Order.Type)
	assert.InDelta(t, 0.21, res.Order.FillPrice, 1e-12)
	assert.Equal(t, int64(11), res.Order.ExchangeOrderID)
	assert.Equal(t, models.SideSell, res.StopLoss.Side)
	assert.Equal(t, models.TypeStopLoss, res.StopLoss.Type)
	assert.Equal(t, 0.18, res.StopLoss.StopPrice)
	assert.Equal(t, res.ExecutionID, res.Order.ExecutionID)
	assert.Equal(t, res.ExecutionID, res.StopLoss.ExecutionID)

	orders := allOrders(t, st)
	require.Len(t, orders, 2)
	assert.False(t, orders[0].NeedsReconciliation)
	require.NotNil(t, orders[1].ParentID)
	assert.Equal(t, orders[0].ID, *orders[1].ParentID)
}

func TestOrderExecutor_StopLossFailureIsDegraded(t *testing.T) {
	client := new(MockRestClient)
	client.On("MarketBuy", mock.Anything, "PEPEUSDT", 50.0).Return(&binance.CreateOrderResponse{
		Symbol: "PEPEUSDT", OrderID: 7, Status: "FILLED", ExecutedQuantity: "50", CummulativeQuoteQty: "5",
	}, nil).Once()
	stopErr := &binance.APIError{StatusCode: 400, Code: -2010, Message: "Stop price would trigger immediately."}
	client.On("PlaceStopLoss", mock.Anything, "PEPEUSDT", 50.0, near(0.09)).Return(nil, stopErr).Once()

	exec, st := newTestExecutor(client, ExecutorOptions{StopLossRatio: 0.9})

	res, err := exec.Execute(context.Background(), DecisionBuy, "PEPEUSDT", 50, 0.1)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, LegStopLoss, exErr.Leg)
	assert.ErrorIs(t, err, stopErr)

	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.StopLoss)
	client.AssertNumberOfCalls(t, "PlaceStopLoss", 1)

	orders := allOrders(t, st)
	require.Len(t, orders, 1, "only the BUY row is stored")
	assert.Equal(t, models.SideBuy, orders[0].Side)
	assert.True(t, orders[0].NeedsReconciliation)
	assert.Contains(t, orders[0].ReconciliationNote, "Stop price would trigger immediately.")

	pending, err := st.QueryOrders(context.Background(), store.Filter{PendingOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOrderExecutor_EntryRejected(t *testing.T) {
	client := new(MockRestClient)
	client.On("MarketBuy", mock.Anything, "DOGEUSDT", 100.0).Return(nil, errors.New("insufficient balance")).Once()

	exec, st := newTestExecutor(client, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), DecisionBuy, "DOGEUSDT", 100, 0.2)
	assert.Nil(t, res)

	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, LegEntry, exErr.Leg)
	assert.Equal(t, "DOGEUSDT", exErr.Symbol)

	client.AssertNotCalled(t, "PlaceStopLoss", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, allOrders(t, st))
}

func TestOrderExecutor_Sell(t *testing.T) {
	client := new(MockRestClient)
	client.On("MarketSell", mock.Anything, "SHIBUSDT", 1000.0).Return(&binance.CreateOrderResponse{
		Symbol: "SHIBUSDT", OrderID: 3, Status: "FILLED", ExecutedQuantity: "1000", CummulativeQuoteQty: "0.02",
	}, nil).Once()

	exec, st := newTestExecutor(client, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), DecisionSell, "SHIBUSDT", 1000, 0.00002)
	require.NoError(t, err)
	assert.Nil(t, res.StopLoss)
	assert.InDelta(t, 0.00002, res.Order.FillPrice, 1e-12)

	orders := allOrders(t, st)
	require.Len(t, orders, 1)
	assert.Equal(t, models.SideSell, orders[0].Side)
	assert.False(t, orders[0].NeedsReconciliation)
	client.AssertNotCalled(t, "PlaceStopLoss", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderExecutor_HoldDoesNothing(t *testing.T) {
	client := new(MockRestClient)
	exec, st := newTestExecutor(client, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), DecisionHold, "DOGEUSDT", 100, 0.2)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, allOrders(t, st))
	client.AssertExpectations(t)
}

func TestOrderExecutor_DryRunUsesCollectedPrice(t *testing.T) {
	exec, st := newTestExecutor(binance.NewPaperClient(zap.NewNop()), ExecutorOptions{DryRun: true, StopLossRatio: 0.9})

	res, err := exec.Execute(context.Background(), DecisionBuy, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)

	assert.Equal(t, 0.2, res.Order.FillPrice)
	assert.Equal(t, 100.0, res.Order.Quantity)
	assert.True(t, res.Order.IsSimulation)
	assert.True(t, res.StopLoss.IsSimulation)
	assert.InDelta(t, 0.18, res.StopLoss.StopPrice, 1e-12)
	assert.Len(t, allOrders(t, st), 2)
}

func TestOrderExecutor_IssuedOrdersIgnoreCallerCancellation(t *testing.T) {
	live := mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	})
	client := new(MockRestClient)
	client.On("MarketBuy", live, "DOGEUSDT", 100.0).Return(&binance.CreateOrderResponse{Status: "FILLED", ExecutedQuantity: "100", CummulativeQuoteQty: "20"}, nil).Once()
	client.On("PlaceStopLoss", live, "DOGEUSDT", 100.0, mock.Anything).Return(&binance.CreateOrderResponse{Status: "NEW"}, nil).Once()

	st := store.NewMemoryStore()
	exec := NewOrderExecutor(client, st, freeLocker{}, ExecutorOptions{OrderTimeout: time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, DecisionBuy, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)
	client.AssertExpectations(t)
	assert.Len(t, allOrders(t, st), 2)
}

func TestOrderExecutor_SuppressesDuplicateEntry(t *testing.T) {
	exec, st := newTestExecutor(binance.NewPaperClient(zap.NewNop()), ExecutorOptions{DuplicateWindow: time.Minute})
	now := time.Now()
	exec.now = func() time.Time { return now }

	first, err := exec.Execute(context.Background(), DecisionBuy, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)
	require.Nil(t, first.Duplicate)

	second, err := exec.Execute(context.Background(), DecisionBuy, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)
	require.NotNil(t, second.Duplicate)
	assert.Equal(t, first.ExecutionID, second.Duplicate.ExecutionID)
	assert.Nil(t, second.Order)

	// The opposite side and other symbols are unaffected.
	sell, err := exec.Execute(context.Background(), DecisionSell, "DOGEUSDT", 100, 0.2)
	require.NoError(t, err)
	assert.Nil(t, sell.Duplicate)
	other, err := exec.Execute(context.Background(), DecisionBuy, "PEPEUSDT", 100, 0.1)
	require.NoError(t, err)
	assert.Nil(t, other.Duplicate)

	// Outside the window the entry goes through again.
	now = now.Add(2 * time.Minute)
	later, err := exec.Execute(context.Background(), DecisionBuy, "PEPEUSDT", 100, 0.1)
	require.NoError(t, err)
	assert.Nil(t, later.Duplicate)

	assert.Len(t, allOrders(t, st), 2+1+2+2)
}
