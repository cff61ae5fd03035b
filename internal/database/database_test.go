package database

import (
	"path/filepath"
	"testing"
	"time"

	"memecoin-trade-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_InMemory(t *testing.T) {
	db, err := NewDatabase("file::memory:")
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.PricePoint{}))
	assert.True(t, db.Migrator().HasTable(&models.SentimentScore{}))
	assert.True(t, db.Migrator().HasTable(&models.Order{}))
}

func TestNewDatabase_KeepsRowsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "bot.db")

	db, err := NewDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.PricePoint{CoinID: "pepe", Price: 1, Timestamp: time.Now()}).Error)
	sqlDB, _ := db.DB()
	require.NoError(t, sqlDB.Close())

	db, err = NewDatabase(dsn)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.PricePoint{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
