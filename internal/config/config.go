package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance   Binance   `mapstructure:"binance"`
	CoinGecko CoinGecko `mapstructure:"coingecko"`
	Advisory  Advisory  `mapstructure:"advisory"`
	Trading   Trading   `mapstructure:"trading"`
	Policy    Policy    `mapstructure:"policy"`
	Lock      Lock      `mapstructure:"lock"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// CoinGecko holds the configuration for the price source.
type CoinGecko struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	VsCurrency     string  `mapstructure:"vs_currency"`
	Days           int     `mapstructure:"days"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// Advisory holds the configuration for the external decision model.
type Advisory struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// WatchItem binds a price-source coin id to an exchange symbol.
type WatchItem struct {
	CoinID string `mapstructure:"coin_id"`
	Symbol string `mapstructure:"symbol"`
}

// Trading holds the configuration for the trading logic.
type Trading struct {
	Watchlist           []WatchItem `mapstructure:"watchlist"`
	Quantity            float64     `mapstructure:"quantity"`
	StartHour           int         `mapstructure:"start_hour"`
	EndHour             int         `mapstructure:"end_hour"`
	Timezone            string      `mapstructure:"timezone"`
	DryRun              bool        `mapstructure:"dry_run"`
	TickInterval        int         `mapstructure:"tick_interval"`
	StopLossRatio       float64     `mapstructure:"stop_loss_ratio"`
	DefaultSentiment    float64     `mapstructure:"default_sentiment"`
	CollectTimeoutSecs  int         `mapstructure:"collect_timeout_seconds"`
	OrderTimeoutSeconds int         `mapstructure:"order_timeout_seconds"`
	DuplicateWindowSecs int         `mapstructure:"duplicate_window_seconds"`
}

// Policy holds the decision thresholds.
type Policy struct {
	BuyVolumeSpike  float64 `mapstructure:"buy_volume_spike"`
	BuySentiment    float64 `mapstructure:"buy_sentiment"`
	SellVolumeSpike float64 `mapstructure:"sell_volume_spike"`
}

// Lock selects how order placement is serialized per symbol.
type Lock struct {
	Backend       string `mapstructure:"backend"` // "memory" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the trading timezone, defaulting to UTC.
func (t Trading) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.apiKey", "")
	v.SetDefault("binance.secretKey", "")
	v.SetDefault("binance.testnet", true)
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.timeout_seconds", 10)
	v.SetDefault("binance.max_retries", 3)

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.apiKey", "")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.days", 1)
	v.SetDefault("coingecko.rate_limit", 0.5) // public tier is ~30 req/min
	v.SetDefault("coingecko.rate_limit_burst", 1)
	v.SetDefault("coingecko.timeout_seconds", 10)
	v.SetDefault("coingecko.max_retries", 3)

	v.SetDefault("advisory.url", "http://localhost:5001/predict")
	v.SetDefault("advisory.timeout_seconds", 5)

	v.SetDefault("trading.quantity", 1)
	v.SetDefault("trading.start_hour", 0)
	v.SetDefault("trading.end_hour", 24)
	v.SetDefault("trading.timezone", "UTC")
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.tick_interval", 300)
	v.SetDefault("trading.stop_loss_ratio", 0.9)
	v.SetDefault("trading.default_sentiment", 0.5)
	v.SetDefault("trading.collect_timeout_seconds", 30)
	v.SetDefault("trading.order_timeout_seconds", 15)
	v.SetDefault("trading.duplicate_window_seconds", 60)

	v.SetDefault("policy.buy_volume_spike", 0.5)
	v.SetDefault("policy.buy_sentiment", 0.7)
	v.SetDefault("policy.sell_volume_spike", -0.1)

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl_seconds", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 5000)
	v.SetDefault("database.dsn", "memecoin.db")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}

	return config, config.Validate()
}

// Validate rejects settings the trading loop cannot run with.
func (c Config) Validate() error {
	t := c.Trading
	if t.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be positive, got %v", t.Quantity)
	}
	if t.StartHour < 0 || t.StartHour > 23 || t.EndHour < 1 || t.EndHour > 24 || t.StartHour >= t.EndHour {
		return fmt.Errorf("trading hours must satisfy 0 <= start_hour < end_hour <= 24, got [%d, %d)", t.StartHour, t.EndHour)
	}
	if t.StopLossRatio <= 0 || t.StopLossRatio >= 1 {
		return fmt.Errorf("trading.stop_loss_ratio must be in (0,1), got %v", t.StopLossRatio)
	}
	if t.TickInterval <= 0 {
		return fmt.Errorf("trading.tick_interval must be positive, got %d", t.TickInterval)
	}
	for _, w := range t.Watchlist {
		if w.CoinID == "" || w.Symbol == "" {
			return fmt.Errorf("watchlist entries need both coin_id and symbol: %+v", w)
		}
	}
	if _, err := t.Location(); err != nil {
		return fmt.Errorf("trading.timezone: %w", err)
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return errors.New("lock.redis_addr is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown lock.backend %q", c.Lock.Backend)
	}
	return nil
}
