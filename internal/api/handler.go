package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"memecoin-trade-bot-go/internal/advisory"
	"memecoin-trade-bot-go/internal/indicators"
	"memecoin-trade-bot-go/internal/models"
	"memecoin-trade-bot-go/internal/store"
	"memecoin-trade-bot-go/internal/trader"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MonitorRequest is the body of POST /monitor. Omitted fields fall back to the
// trading configuration; omitted sentiment uses the stored average.
type MonitorRequest struct {
	CoinID         string   `json:"coin_id"`
	Symbol         string   `json:"symbol"`
	Quantity       *float64 `json:"quantity"`
	SentimentScore *float64 `json:"sentiment_score"`
	StartHour      *int     `json:"start_hour"`
	EndHour        *int     `json:"end_hour"`
}

// ManualOrderRequest is the body of POST /buy and POST /sell.
type ManualOrderRequest struct {
	CoinID   string  `json:"coin_id"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// SentimentRequest is the body of POST /sentiment.
type SentimentRequest struct {
	CoinID    string     `json:"coin_id"`
	Score     *float64   `json:"score"`
	Timestamp *time.Time `json:"timestamp"`
}

// PostMonitor handles POST /monitor requests.
func (s *Server) PostMonitor(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var body MonitorRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.handleValidationError(c, err)
		return
	}

	req := trader.Request{
		CoinID:    body.CoinID,
		Symbol:    body.Symbol,
		Quantity:  s.deps.Trading.Quantity,
		StartHour: s.deps.Trading.StartHour,
		EndHour:   s.deps.Trading.EndHour,
	}
	if body.Quantity != nil {
		req.Quantity = *body.Quantity
	}
	if body.StartHour != nil {
		req.StartHour = *body.StartHour
	}
	if body.EndHour != nil {
		req.EndHour = *body.EndHour
	}
	if body.SentimentScore != nil {
		req.SentimentScore = *body.SentimentScore
	} else if body.CoinID != "" {
		avg, err := s.averageSentiment(ctx, body.CoinID)
		if err != nil {
			s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
			return
		}
		req.SentimentScore = avg
	}

	res, err := s.deps.Monitor.Monitor(ctx, req)
	if err != nil {
		var partial interface{}
		if res != nil {
			partial = res
		}
		s.handleError(c, err, statusFor(err), err.Error(), partial)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PostManualOrder handles POST /buy and POST /sell. The stop-loss of a manual BUY
// is priced from the latest collected price of the coin.
func (s *Server) PostManualOrder(decision trader.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
		defer cancel()

		var body ManualOrderRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			s.handleValidationError(c, err)
			return
		}
		coinID, err := s.validator.CoinID(body.CoinID)
		if err == nil && coinID == "" {
			err = errors.New("coin_id is required")
		}
		if err != nil {
			s.handleValidationError(c, err)
			return
		}
		symbol, err := s.validator.Symbol(body.Symbol)
		if err == nil && symbol == "" {
			err = errors.New("symbol is required")
		}
		if err != nil {
			s.handleValidationError(c, err)
			return
		}
		if !(body.Quantity > 0) || math.IsInf(body.Quantity, 0) {
			s.handleValidationError(c, errors.New("quantity must be a positive number"))
			return
		}

		latest, err := s.deps.Store.QueryPrices(ctx, store.Filter{Key: coinID, Descending: true, Limit: 1})
		if err != nil {
			s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
			return
		}
		if len(latest) == 0 {
			s.handleError(c, errors.New("no collected price"), http.StatusConflict, "no collected price for "+coinID, nil)
			return
		}

		res, err := s.deps.Executor.Execute(ctx, decision, symbol, body.Quantity, latest[0].Price)
		if err != nil {
			var partial interface{}
			if res != nil {
				partial = gin.H{"order": res.Order, "degraded": res.Degraded}
			}
			s.handleError(c, err, statusFor(err), err.Error(), partial)
			return
		}
		if res.Duplicate != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate order suppressed", "previous": res.Duplicate})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": res.Order, "stop_loss": res.StopLoss})
	}
}

// GetIndicators handles GET /indicators/:coin_id requests.
func (s *Server) GetIndicators(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	coinID, err := s.validator.CoinID(c.Param("coin_id"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}

	points, err := s.deps.Store.QueryPrices(ctx, store.Filter{Key: coinID})
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data for " + coinID})
		return
	}

	prices := make([]float64, len(points))
	timestamps := make([]time.Time, len(points))
	for i, p := range points {
		prices[i] = p.Price
		timestamps[i] = p.Timestamp
	}

	snap, err := indicators.NewSnapshot(prices, timestamps)
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetHistory handles GET /history requests: every order, newest first.
func (s *Server) GetHistory(c *gin.Context) {
	s.listOrders(c, store.Filter{Descending: true}, false)
}

// GetOrders handles GET /orders requests: the latest orders, newest first.
func (s *Server) GetOrders(c *gin.Context) {
	s.listOrders(c, store.Filter{Descending: true, Limit: DefaultListLimit}, true)
}

// GetReconciliation handles GET /reconciliation: BUY orders whose stop-loss
// was never placed.
func (s *Server) GetReconciliation(c *gin.Context) {
	s.listOrders(c, store.Filter{Descending: true, PendingOnly: true}, false)
}

func (s *Server) listOrders(c *gin.Context, f store.Filter, limited bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	symbol, err := s.validator.Symbol(c.Query("symbol"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	f.Key = symbol
	if limited {
		if f.Limit, err = s.validator.Limit(c.Query("limit"), f.Limit); err != nil {
			s.handleValidationError(c, err)
			return
		}
	}

	orders, err := s.deps.Store.QueryOrders(ctx, f)
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// GetPrices handles GET /prices requests: the latest price points, newest first.
func (s *Server) GetPrices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	coinID, err := s.validator.CoinID(c.Query("coin_id"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	limit, err := s.validator.Limit(c.Query("limit"), DefaultListLimit)
	if err != nil {
		s.handleValidationError(c, err)
		return
	}

	points, err := s.deps.Store.QueryPrices(ctx, store.Filter{Key: coinID, Descending: true, Limit: limit})
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	c.JSON(http.StatusOK, points)
}

// GetHype handles GET /hype requests: the coins that moved most in the last day.
func (s *Server) GetHype(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	points, err := s.deps.Store.QueryPrices(ctx, store.Filter{Since: time.Now().Add(-24 * time.Hour)})
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	ranked := indicators.RankHype(points, HypeLimit)
	if ranked == nil {
		ranked = []indicators.HypeEntry{}
	}
	c.JSON(http.StatusOK, ranked)
}

// GetSentiment handles GET /sentiment requests.
func (s *Server) GetSentiment(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	coinID, err := s.validator.CoinID(c.Query("coin_id"))
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	avg, err := s.averageSentiment(ctx, coinID)
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"average_sentiment": avg})
}

// PostSentiment handles POST /sentiment requests.
func (s *Server) PostSentiment(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var body SentimentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.handleValidationError(c, err)
		return
	}
	coinID, err := s.validator.CoinID(body.CoinID)
	if err == nil && coinID == "" {
		err = errors.New("coin_id is required")
	}
	if err != nil {
		s.handleValidationError(c, err)
		return
	}
	if body.Score == nil || *body.Score < 0 || *body.Score > 1 {
		s.handleValidationError(c, errors.New("score must be within [0,1]"))
		return
	}

	score := &models.SentimentScore{CoinID: coinID, Score: *body.Score, Timestamp: time.Now().UTC()}
	if body.Timestamp != nil {
		score.Timestamp = *body.Timestamp
	}
	if err := s.deps.Store.AppendSentiment(ctx, score); err != nil {
		s.handleError(c, err, statusFor(err), err.Error(), nil)
		return
	}
	c.JSON(http.StatusCreated, score)
}

// PostAIDecision handles POST /ai-decision requests. A body carrying only a
// coin_id is expanded into features from the stored history; any other body is
// forwarded to the model unchanged.
func (s *Server) PostAIDecision(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.handleValidationError(c, err)
		return
	}

	var features interface{} = body
	if coinID, ok := body["coin_id"].(string); ok && body["price"] == nil {
		f, status, err := s.featuresFor(ctx, coinID)
		if err != nil {
			s.handleError(c, err, status, err.Error(), nil)
			return
		}
		features = f
	}

	prediction, err := s.deps.Advisor.Predict(ctx, features)
	if err != nil {
		s.handleError(c, err, http.StatusBadGateway, "advisory model unavailable", nil)
		return
	}
	c.JSON(http.StatusOK, prediction)
}

func (s *Server) featuresFor(ctx context.Context, rawCoinID string) (*advisory.Features, int, error) {
	coinID, err := s.validator.CoinID(rawCoinID)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	points, err := s.deps.Store.QueryPrices(ctx, store.Filter{Key: coinID})
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if len(points) == 0 {
		return nil, http.StatusNotFound, errors.New("no data for " + coinID)
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	snap, err := indicators.NewSnapshot(prices, nil)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	sentiment, err := s.averageSentiment(ctx, coinID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	f := advisory.FeaturesFrom(coinID, snap, points[len(points)-1].VolumeChange, sentiment)
	return &f, http.StatusOK, nil
}

// GetStatus handles GET /status requests.
func (s *Server) GetStatus(c *gin.Context) {
	if s.deps.Status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not running"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Status.Status())
}

// HealthCheck handles GET /health requests.
func (s *Server) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// averageSentiment is the mean stored score, for one coin when coinID is set,
// or the configured default when nothing has been recorded.
func (s *Server) averageSentiment(ctx context.Context, coinID string) (float64, error) {
	avg, ok, err := s.deps.Store.Aggregate(ctx, store.EntitySentiment, store.OpAvg, store.Filter{Key: coinID})
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.deps.Trading.DefaultSentiment, nil
	}
	return avg, nil
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	var cfgErr *trader.ConfigurationError
	var collErr *trader.CollectionError
	var exErr *trader.ExchangeError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.As(err, &collErr), errors.As(err, &exErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs the error and sends the response. result, when not nil, is
// the partial outcome reached before the failure.
func (s *Server) handleError(c *gin.Context, err error, statusCode int, userMessage string, result interface{}) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	s.logger.Error("API error",
		zap.String("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status_code", statusCode),
		zap.Error(err),
	)

	body := gin.H{
		"error":      userMessage,
		"request_id": requestID,
	}
	if result != nil {
		body["result"] = result
	}
	c.JSON(statusCode, body)
}

// handleValidationError handles validation errors specifically.
func (s *Server) handleValidationError(c *gin.Context, err error) {
	s.handleError(c, err, http.StatusBadRequest, err.Error(), nil)
}
