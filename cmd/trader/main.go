package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"memecoin-trade-bot-go/internal/advisory"
	"memecoin-trade-bot-go/internal/api"
	"memecoin-trade-bot-go/internal/binance"
	"memecoin-trade-bot-go/internal/coingecko"
	"memecoin-trade-bot-go/internal/config"
	"memecoin-trade-bot-go/internal/database"
	"memecoin-trade-bot-go/internal/lock"
	"memecoin-trade-bot-go/internal/logger"
	"memecoin-trade-bot-go/internal/store"
	"memecoin-trade-bot-go/internal/trader"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// API keys usually live in .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("could not load .env: %v", err))
	}

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.Bool("dry_run", cfg.Trading.DryRun), zap.Int("watchlist", len(cfg.Trading.Watchlist)))

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	st := store.NewGormStore(db)

	// Exchange: a paper exchange in dry-run mode, Binance otherwise.
	var exchange binance.RestClientInterface
	if cfg.Trading.DryRun {
		log.Warn("Dry run enabled. Orders are simulated.")
		exchange = binance.NewPaperClient(log)
	} else {
		restClient := binance.NewRestClient(&cfg.Binance, log)
		if _, err := restClient.GetServerTime(ctx); err != nil {
			log.Fatal("Failed to connect to Binance API", zap.Error(err))
		}
		log.Info("Successfully connected to Binance API.")
		// Orders load missing rules on demand; this only warms the cache.
		if info, err := restClient.GetExchangeInfo(ctx); err != nil {
			log.Warn("Exchange rules not preloaded", zap.Error(err))
		} else {
			log.Info("Cached exchange information", zap.Int("symbols", len(info.Symbols)))
		}
		exchange = restClient
	}

	locker, closeLocker, err := newLocker(ctx, cfg.Lock, log)
	if err != nil {
		log.Fatal("Failed to initialize symbol lock", zap.Error(err))
	}
	defer closeLocker()

	loc, err := cfg.Trading.Location()
	if err != nil {
		log.Fatal("Invalid trading timezone", zap.Error(err))
	}

	collector := trader.NewPriceCollector(
		coingecko.NewClient(&cfg.CoinGecko, log),
		st,
		time.Duration(cfg.Trading.CollectTimeoutSecs)*time.Second,
		log,
	)
	executor := trader.NewOrderExecutor(exchange, st, locker, trader.ExecutorOptions{
		StopLossRatio:   cfg.Trading.StopLossRatio,
		OrderTimeout:    time.Duration(cfg.Trading.OrderTimeoutSeconds) * time.Second,
		DryRun:          cfg.Trading.DryRun,
		DuplicateWindow: time.Duration(cfg.Trading.DuplicateWindowSecs) * time.Second,
	}, log)
	cycle := trader.NewMonitorCycle(collector, executor, trader.NewThresholdStrategy(cfg.Policy), loc, log)
	engine := trader.NewEngine(log, &cfg, exchange, st, cycle)

	server := api.NewServer(api.Deps{
		Monitor:  cycle,
		Executor: executor,
		Store:    st,
		Advisor:  advisory.NewClient(&cfg.Advisory, log),
		Status:   engine,
		Trading:  cfg.Trading,
	}, cfg.Server.Port, log)
	server.Start()

	// The API serves until shutdown whatever happens to the background loop.
	if len(cfg.Trading.Watchlist) > 0 {
		if err := engine.Run(ctx); err != nil {
			log.Error("Trading engine stopped, API keeps serving", zap.Error(err))
		}
	} else {
		log.Info("Empty watchlist, serving API only.")
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}

func newLocker(ctx context.Context, cfg config.Lock, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.Backend != "redis" {
		return lock.NewMemoryLocker(), func() {}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locker, err := lock.NewRedisLocker(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		time.Duration(cfg.TTLSeconds)*time.Second, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using Redis symbol lock", zap.String("addr", cfg.RedisAddr))
	return locker, func() { _ = locker.Close() }, nil
}
