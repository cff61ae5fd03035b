package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
trading:
  watchlist:
    - coin_id: "dogecoin"
      symbol: "DOGEUSDT"
  quantity: 50
  start_hour: 9
  end_hour: 17
  timezone: "Europe/Lisbon"
lock:
  backend: "memory"
`

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Trading.Quantity)
	assert.Equal(t, 9, cfg.Trading.StartHour)
	assert.Equal(t, 17, cfg.Trading.EndHour)
	assert.Equal(t, []WatchItem{{CoinID: "dogecoin", Symbol: "DOGEUSDT"}}, cfg.Trading.Watchlist)

	// Defaults
	assert.Equal(t, 0.9, cfg.Trading.StopLossRatio)
	assert.Equal(t, 0.5, cfg.Policy.BuyVolumeSpike)
	assert.Equal(t, 0.7, cfg.Policy.BuySentiment)
	assert.Equal(t, -0.1, cfg.Policy.SellVolumeSpike)
	assert.Equal(t, "usd", cfg.CoinGecko.VsCurrency)
	assert.Equal(t, 20.0, cfg.Binance.RateLimit)

	loc, err := cfg.Trading.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Lisbon", loc.String())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TRADING_QUANTITY", "7.5")
	t.Setenv("BINANCE_APIKEY", "from-env")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 7.5, cfg.Trading.Quantity)
	assert.Equal(t, "from-env", cfg.Binance.ApiKey)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Trading.StartHour)
	assert.Equal(t, 24, cfg.Trading.EndHour)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 60, cfg.Trading.DuplicateWindowSecs)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Trading: Trading{Quantity: 1, StartHour: 8, EndHour: 20, StopLossRatio: 0.9, TickInterval: 60},
			Lock:    Lock{Backend: "memory"},
		}
	}

	testCases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "Valid", mutate: func(c *Config) {}, ok: true},
		{name: "Zero quantity", mutate: func(c *Config) { c.Trading.Quantity = 0 }},
		{name: "Inverted hours", mutate: func(c *Config) { c.Trading.StartHour, c.Trading.EndHour = 20, 8 }},
		{name: "Hour out of range", mutate: func(c *Config) { c.Trading.EndHour = 25 }},
		{name: "Stop ratio above one", mutate: func(c *Config) { c.Trading.StopLossRatio = 1.2 }},
		{name: "Watch item without symbol", mutate: func(c *Config) { c.Trading.Watchlist = []WatchItem{{CoinID: "pepe"}} }},
		{name: "Bad timezone", mutate: func(c *Config) { c.Trading.Timezone = "Mars/Olympus" }},
		{name: "Redis without address", mutate: func(c *Config) { c.Lock.Backend = "redis" }},
		{name: "Unknown lock backend", mutate: func(c *Config) { c.Lock.Backend = "etcd" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
