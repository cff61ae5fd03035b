package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/transport"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	baseURL           = "https://api.binance.com/api/v3"
	testnetBaseURL    = "https://testnet.binance.vision/api/v3"
	recvWindow        = "5000" // How long a request is valid in milliseconds
	OrderTypeMarket   = "MARKET"
	OrderTypeStopLoss = "STOP_LOSS"
	OrderSideBuy      = "BUY"
	OrderSideSell     = "SELL"
)

// RestClientInterface defines the exchange operations the trader relies on.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error)
	MarketBuy(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error)
	MarketSell(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error)
	PlaceStopLoss(ctx context.Context, symbol string, quantity, stopPrice float64) (*CreateOrderResponse, error)
}

// APIError is a rejection reported by Binance in its error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	requester *transport.Requester
	apiKey    string
	secretKey string
	logger    *zap.Logger

	mu    sync.RWMutex
	rules map[string]SymbolInfo
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// ErrUnknownSymbol is returned when exchange info has no rules for a symbol.
var ErrUnknownSymbol = errors.New("symbol not listed in exchange info")

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	requester := transport.New(transport.Options{
		BaseURL:    url,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.RateLimitBurst,
		MaxRetries: cfg.MaxRetries,
	}, logger)

	return newRestClient(requester, cfg.ApiKey, cfg.SecretKey, logger)
}

func newRestClient(requester *transport.Requester, apiKey, secretKey string, logger *zap.Logger) *RestClient {
	return &RestClient{
		requester: requester,
		apiKey:    apiKey,
		secretKey: secretKey,
		logger:    logger.Named("binance"),
		rules:     make(map[string]SymbolInfo),
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.requester.R().
		SetResult(&ServerTimeResponse{})

	resp, err := c.requester.DoWithRetry(ctx, http.MethodGet, "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// GetExchangeInfo fetches exchange trading rules and caches them for order formatting.
func (c *RestClient) GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	req := c.requester.R().
		SetResult(&ExchangeInfoResponse{}).
		SetHeader("Content-Type", "application/json")

	resp, err := c.requester.DoWithRetry(ctx, http.MethodGet, "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	info := resp.Result().(*ExchangeInfoResponse)
	c.mu.Lock()
	for _, s := range info.Symbols {
		c.rules[s.Symbol] = s
	}
	c.mu.Unlock()

	return info, nil
}

// Fill is a partial execution of a market order.
type Fill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// CreateOrderResponse represents the response from creating a new order.
type CreateOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Price               string `json:"price"`
	StopPrice           string `json:"stopPrice,omitempty"`
	OrigQuantity        string `json:"origQty"`
	ExecutedQuantity    string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	Fills               []Fill `json:"fills,omitempty"`
}

// AvgPrice returns the volume-weighted fill price, or 0 when nothing was executed.
func (r *CreateOrderResponse) AvgPrice() float64 {
	executed, err1 := decimal.NewFromString(r.ExecutedQuantity)
	quote, err2 := decimal.NewFromString(r.CummulativeQuoteQty)
	if err1 != nil || err2 != nil || executed.IsZero() {
		return 0
	}
	price, _ := quote.Div(executed).Float64()
	return price
}

// ExecutedQty returns the executed quantity as a float, or 0 when absent.
func (r *CreateOrderResponse) ExecutedQty() float64 {
	qty, err := strconv.ParseFloat(r.ExecutedQuantity, 64)
	if err != nil {
		return 0
	}
	return qty
}

// MarketBuy places a MARKET BUY order.
func (c *RestClient) MarketBuy(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error) {
	return c.createOrder(ctx, symbol, OrderSideBuy, OrderTypeMarket, quantity, 0)
}

// MarketSell places a MARKET SELL order.
func (c *RestClient) MarketSell(ctx context.Context, symbol string, quantity float64) (*CreateOrderResponse, error) {
	return c.createOrder(ctx, symbol, OrderSideSell, OrderTypeMarket, quantity, 0)
}

// PlaceStopLoss places a STOP_LOSS SELL order that triggers at stopPrice.
func (c *RestClient) PlaceStopLoss(ctx context.Context, symbol string, quantity, stopPrice float64) (*CreateOrderResponse, error) {
	return c.createOrder(ctx, symbol, OrderSideSell, OrderTypeStopLoss, quantity, stopPrice)
}

func (c *RestClient) symbolInfo(symbol string) (SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.rules[symbol]
	return info, ok
}

// rulesFor returns the cached trading rules for symbol, fetching exchange info
// on a miss. Orders are never sent unformatted.
func (c *RestClient) rulesFor(ctx context.Context, symbol string) (SymbolInfo, error) {
	if info, ok := c.symbolInfo(symbol); ok {
		return info, nil
	}
	c.logger.Info("Loading exchange rules", zap.String("symbol", symbol))
	if _, err := c.GetExchangeInfo(ctx); err != nil {
		return SymbolInfo{}, fmt.Errorf("load exchange rules for %s: %w", symbol, err)
	}
	info, ok := c.symbolInfo(symbol)
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return info, nil
}

// createOrder signs and submits a single order. Orders are never retried:
// a repeated POST could open a second position.
func (c *RestClient) createOrder(ctx context.Context, symbol, side, orderType string, quantity, stopPrice float64) (*CreateOrderResponse, error) {
	l := c.logger.With(
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("type", orderType),
	)

	info, err := c.rulesFor(ctx, symbol)
	if err != nil {
		l.Error("Order not sent", zap.Error(err))
		return nil, err
	}
	qty, err := info.FormatQuantity(quantity)
	if err != nil {
		return nil, err
	}
	stop := info.FormatPrice(stopPrice)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", orderType)
	params.Set("quantity", qty.String())
	if orderType == OrderTypeStopLoss {
		params.Set("stopPrice", stop.String())
	} else {
		params.Set("newOrderRespType", "FULL")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", recvWindow)

	queryString := params.Encode()
	params.Set("signature", c.sign(queryString))

	req := c.requester.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode()).
		SetResult(&CreateOrderResponse{})

	resp, err := c.requester.Do(ctx, http.MethodPost, "/order", req)
	if err != nil {
		err = asAPIError(err)
		l.Error("Failed to create order", zap.String("quantity", qty.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*CreateOrderResponse)
	l.Info("Successfully created order", zap.Int64("order_id", result.OrderID), zap.String("status", result.Status))
	return result, nil
}

// asAPIError decodes a Binance error body when one is present.
func asAPIError(err error) error {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return err
	}
	apiErr := &APIError{StatusCode: se.StatusCode}
	if jsonErr := json.Unmarshal([]byte(se.Body), apiErr); jsonErr != nil || apiErr.Message == "" {
		return err
	}
	return apiErr
}
