package trader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/lock"
	"memecoin-trade-bot-go/internal/models"
	"memecoin-trade-bot-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, client binance.RestClientInterface, src *stubSource) (*Engine, *store.MemoryStore) {
	t.Helper()
	cfg := &config.Config{
		Trading: config.Trading{
			Watchlist: []config.WatchItem{
				{CoinID: "dogecoin", Symbol: "DOGEUSDT"},
				{CoinID: "pepe", Symbol: "PEPEUSDT"},
			},
			Quantity:         100,
			StartHour:        0,
			EndHour:          24,
			TickInterval:     1,
			DefaultSentiment: 0.5,
			DryRun:           true,
		},
	}
	st := store.NewMemoryStore()
	collector := NewPriceCollector(src, st, 0, zap.NewNop())
	executor := NewOrderExecutor(client, st, lock.NewMemoryLocker(), ExecutorOptions{DryRun: true}, zap.NewNop())
	cycle := NewMonitorCycle(collector, executor, DefaultStrategy(), time.UTC, zap.NewNop())
	return NewEngine(zap.NewNop(), cfg, client, st, cycle), st
}

func TestEngine_Sentiment(t *testing.T) {
	engine, st := newTestEngine(t, binance.NewPaperClient(zap.NewNop()), &stubSource{})
	ctx := context.Background()

	s, err := engine.Sentiment(ctx, "dogecoin")
	require.NoError(t, err)
	assert.Equal(t, 0.5, s, "default when nothing recorded")

	now := time.Now()
	require.NoError(t, st.AppendSentiment(ctx, &models.SentimentScore{CoinID: "dogecoin", Score: 0.8, Timestamp: now}))
	require.NoError(t, st.AppendSentiment(ctx, &models.SentimentScore{CoinID: "dogecoin", Score: 1.0, Timestamp: now}))
	require.NoError(t, st.AppendSentiment(ctx, &models.SentimentScore{CoinID: "pepe", Score: 0.0, Timestamp: now}))

	s, err = engine.Sentiment(ctx, "dogecoin")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, s, 1e-12)
}

func TestEngine_Scout(t *testing.T) {
	// A +100% move with recorded strong sentiment buys; the default 0.5 holds.
	engine, st := newTestEngine(t, binance.NewPaperClient(zap.NewNop()), &stubSource{series: seriesOf(0.1, 0.2)})
	ctx := context.Background()
	require.NoError(t, st.AppendSentiment(ctx, &models.SentimentScore{CoinID: "dogecoin", Score: 0.95, Timestamp: time.Now()}))

	summaries := engine.Scout(ctx)
	require.Len(t, summaries, 2)

	doge := summaries["dogecoin"]
	require.NotNil(t, doge.Result)
	assert.Empty(t, doge.Error)
	assert.Equal(t, DecisionBuy, doge.Result.Decision)
	assert.Equal(t, OutcomeFilled, doge.Result.Outcome)
	assert.True(t, doge.Result.Order.IsSimulation)

	pepe := summaries["pepe"]
	require.NotNil(t, pepe.Result)
	assert.Equal(t, DecisionHold, pepe.Result.Decision)

	orders, err := st.QueryOrders(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, orders, 2, "BUY and its stop-loss")

	status := engine.Status()
	assert.Equal(t, "Threshold", status.Strategy)
	assert.True(t, status.DryRun)
	assert.Len(t, status.LastCycle, 2)
	assert.NotEmpty(t, status.UUID)
}

func TestEngine_ScoutRecordsFailures(t *testing.T) {
	engine, _ := newTestEngine(t, binance.NewPaperClient(zap.NewNop()), &stubSource{err: errors.New("connection refused")})

	summaries := engine.Scout(context.Background())
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Contains(t, s.Error, "connection refused")
		assert.Equal(t, OutcomeFailed, s.Result.Outcome)
	}
}

func TestEngine_RunContinuesWithoutExchangeInfo(t *testing.T) {
	client := new(MockRestClient)
	client.On("GetExchangeInfo", mock.Anything).Return(nil, errors.New("unreachable")).Once()
	engine, _ := newTestEngine(t, client, &stubSource{err: errors.New("connection refused")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(engine.Status().LastCycle) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	client.AssertExpectations(t)
}

func TestEngine_RunScoutsBeforeFirstTick(t *testing.T) {
	src := &stubSource{series: seriesOf(1, 1)}
	engine, _ := newTestEngine(t, binance.NewPaperClient(zap.NewNop()), src)
	engine.cfg.Trading.TickInterval = 3600

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(engine.Status().LastCycle) == 2 }, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&src.calls), int32(2))
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	engine, _ := newTestEngine(t, binance.NewPaperClient(zap.NewNop()), &stubSource{series: seriesOf(1, 1)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}
