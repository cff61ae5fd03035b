package trader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/coingecko"

	"github.com/stretchr/testify/mock"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetExchangeInfo(ctx context.Context) (*binance.ExchangeInfoResponse, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*binance.ExchangeInfoResponse)
	return info, args.Error(1)
}

func (m *MockRestClient) MarketBuy(ctx context.Context, symbol string, quantity float64) (*binance.CreateOrderResponse, error) {
	args := m.Called(ctx, symbol, quantity)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

func (m *MockRestClient) MarketSell(ctx context.Context, symbol string, quantity float64) (*binance.CreateOrderResponse, error) {
	args := m.Called(ctx, symbol, quantity)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

func (m *MockRestClient) PlaceStopLoss(ctx context.Context, symbol string, quantity, stopPrice float64) (*binance.CreateOrderResponse, error) {
	args := m.Called(ctx, symbol, quantity, stopPrice)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

// stubSource serves a fixed series or error.
type stubSource struct {
	series []coingecko.SeriesPoint
	err    error
	calls  int32
}

func (s *stubSource) FetchSeries(ctx context.Context, coinID string) ([]coingecko.SeriesPoint, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.series, nil
}

func seriesOf(prices ...float64) []coingecko.SeriesPoint {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]coingecko.SeriesPoint, len(prices))
	for i, p := range prices {
		out[i] = coingecko.SeriesPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return out
}

// clockAt returns a fixed UTC clock at hour:30.
func clockAt(hour int) func() time.Time {
	return func() time.Time { return time.Date(2025, 3, 1, hour, 30, 0, 0, time.UTC) }
}

// slowExchange fills every order after a delay and records how many orders
// were in flight at once.
type slowExchange struct {
	binance.PaperClient
	delay time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	buys        int
}

func newSlowExchange(delay time.Duration) *slowExchange {
	return &slowExchange{delay: delay}
}

func (s *slowExchange) enter() {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
}

func (s *slowExchange) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *slowExchange) MarketBuy(ctx context.Context, symbol string, quantity float64) (*binance.CreateOrderResponse, error) {
	s.enter()
	defer s.leave()
	time.Sleep(s.delay)

	s.mu.Lock()
	s.buys++
	id := int64(s.buys)
	s.mu.Unlock()
	return &binance.CreateOrderResponse{Symbol: symbol, OrderID: id, Status: "FILLED", ExecutedQuantity: "100", CummulativeQuoteQty: "20"}, nil
}

func (s *slowExchange) PlaceStopLoss(ctx context.Context, symbol string, quantity, stopPrice float64) (*binance.CreateOrderResponse, error) {
	return &binance.CreateOrderResponse{Symbol: symbol, OrderID: 1000, Status: "NEW"}, nil
}

func (s *slowExchange) counts() (buys, maxInFlight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buys, s.maxInFlight
}
