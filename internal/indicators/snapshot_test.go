package indicators

import (
	"encoding/json"
	"testing"
	"time"

	"memecoin-trade-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	t.Run("Short history leaves indicators null", func(t *testing.T) {
		snap, err := NewSnapshot([]float64{1, 2, 3}, nil)
		require.NoError(t, err)

		assert.Equal(t, 3.0, snap.Price)
		assert.Nil(t, snap.Var24h)
		assert.Nil(t, snap.SMA9)
		assert.Nil(t, snap.RSI)

		raw, err := json.Marshal(snap)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"sma9":null`)
		assert.Contains(t, string(raw), `"var24h":null`)
	})

	t.Run("Full history", func(t *testing.T) {
		prices := make([]float64, 60)
		for i := range prices {
			prices[i] = float64(i + 1)
		}
		snap, err := NewSnapshot(prices, nil)
		require.NoError(t, err)

		require.NotNil(t, snap.SMA9)
		require.NotNil(t, snap.SMA21)
		require.NotNil(t, snap.SMA50)
		require.NotNil(t, snap.RSI)
		require.NotNil(t, snap.Var24h)
		assert.InDelta(t, 56.0, *snap.SMA9, 1e-9)
		assert.InDelta(t, 50.0, *snap.SMA21, 1e-9)
		assert.InDelta(t, 35.5, *snap.SMA50, 1e-9)
		assert.Equal(t, 100.0, *snap.RSI)
		assert.InDelta(t, (60.0-37.0)/37.0*100, *snap.Var24h, 1e-9)
		assert.Equal(t, 60, snap.Samples)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewSnapshot(nil, nil)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestRankHype(t *testing.T) {
	now := time.Now()
	points := []models.PricePoint{
		{CoinID: "doge", Price: 0.10, VolumeChange: 0.2, Timestamp: now},
		{CoinID: "doge", Price: 0.20, VolumeChange: 0.5, Timestamp: now},
		{CoinID: "pepe", Price: 1.0, VolumeChange: -0.3, Timestamp: now},
		{CoinID: "pepe", Price: 3.0, VolumeChange: -0.1, Timestamp: now},
		{CoinID: "shib", Price: 5.0, VolumeChange: 0, Timestamp: now},
	}

	entries := RankHype(points, 2)

	require.Len(t, entries, 2)
	// pepe: (3-1) * 1 (no positive volume change) = 2
	assert.Equal(t, "pepe", entries[0].CoinID)
	assert.InDelta(t, 2.0, entries[0].HypeScore, 1e-9)
	// doge: (0.2-0.1) * 0.5 = 0.05
	assert.Equal(t, "doge", entries[1].CoinID)
	assert.InDelta(t, 0.05, entries[1].HypeScore, 1e-9)
	assert.Equal(t, 2, entries[1].Samples)

	assert.Empty(t, RankHype(nil, 5))
}
