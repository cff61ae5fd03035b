// Package api exposes the monitor cycle and the stored history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"memecoin-trade-bot-go/internal/advisory"
	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/store"
	"memecoin-trade-bot-go/internal/trader"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultListLimit    = 50
	MaxListLimit        = 1000
	HypeLimit           = 5
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Monitor runs one monitor cycle.
type Monitor interface {
	Monitor(ctx context.Context, req trader.Request) (*trader.CycleResult, error)
}

// StatusProvider reports the state of the background engine.
type StatusProvider interface {
	Status() trader.Status
}

// Advisor asks the external model for a decision.
type Advisor interface {
	Predict(ctx context.Context, features interface{}) (*advisory.Prediction, error)
}

// Deps are the collaborators served by the API.
type Deps struct {
	Monitor  Monitor
	Executor trader.Executor
	Store    store.Store
	Advisor  Advisor
	Status   StatusProvider
	Trading  config.Trading
}

// Server serves the HTTP API.
type Server struct {
	deps      Deps
	validator *Validator
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server listening on port.
func NewServer(deps Deps, port int, logger *zap.Logger) *Server {
	s := &Server{
		deps:      deps,
		validator: GetValidator(),
		logger:    logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetupRoutes configures all API routes.
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(zapLoggerMiddleware(s.logger))
	router.Use(zapRecoveryMiddleware(s.logger))
	router.Use(corsMiddleware())

	router.POST("/monitor", s.PostMonitor)
	router.POST("/buy", s.PostManualOrder(trader.DecisionBuy))
	router.POST("/sell", s.PostManualOrder(trader.DecisionSell))
	router.GET("/indicators/:coin_id", s.GetIndicators)
	router.GET("/history", s.GetHistory)
	router.GET("/orders", s.GetOrders)
	router.GET("/prices", s.GetPrices)
	router.GET("/hype", s.GetHype)
	router.GET("/sentiment", s.GetSentiment)
	router.POST("/sentiment", s.PostSentiment)
	router.GET("/reconciliation", s.GetReconciliation)
	router.POST("/ai-decision", s.PostAIDecision)
	router.GET("/status", s.GetStatus)
	router.GET("/health", s.HealthCheck)

	return router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}
