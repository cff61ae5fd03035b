package binance

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PaperClient simulates order placement for dry runs. Market orders report no
// quote quantity, so callers price the fill themselves.
type PaperClient struct {
	logger *zap.Logger
	nextID int64
}

var _ RestClientInterface = (*PaperClient)(nil)

// NewPaperClient creates a dry-run exchange.
func NewPaperClient(logger *zap.Logger) *PaperClient {
	return &PaperClient{logger: logger.Named("paper-exchange")}
}

func (p *PaperClient) GetServerTime(ctx context.Context) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (p *PaperClient) GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	return &ExchangeInfoResponse{}, nil
}

func (p *PaperClient) MarketBuy(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error) {
	return p.simulate(symbol, OrderSideBuy, OrderTypeMarket, quantity, 0), nil
}

func (p *PaperClient) MarketSell(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error) {
	return p.simulate(symbol, OrderSideSell, OrderTypeMarket, quantity, 0), nil
}

func (p *PaperClient) PlaceStopLoss(ctx context.Context, symbol string, quantity, stopPrice float64) (*CreateOrderResponse, error) {
	return p.simulate(symbol, OrderSideSell, OrderTypeStopLoss, quantity, stopPrice), nil
}

func (p *PaperClient) simulate(symbol, side, orderType string, quantity, stopPrice float64) *CreateOrderResponse {
	p.logger.Warn("[Dry Run] Simulating order",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("type", orderType),
		zap.Float64("quantity", quantity))

	resp := &CreateOrderResponse{
		Symbol:       symbol,
		OrderID:      atomic.AddInt64(&p.nextID, 1),
		TransactTime: time.Now().UnixMilli(),
		OrigQuantity: strconv.FormatFloat(quantity, 'f', -1, 64),
		Type:         orderType,
		Side:         side,
	}
	if orderType == OrderTypeStopLoss {
		resp.Status = "NEW"
		resp.ExecutedQuantity = "0"
		resp.StopPrice = strconv.FormatFloat(stopPrice, 'f', -1, 64)
	} else {
		resp.Status = "FILLED"
		resp.ExecutedQuantity = resp.OrigQuantity
	}
	return resp
}
