package models

import (
	"time"

	"gorm.io/gorm"
)

// PricePoint is one observation appended by the price collector.
// Rows are never updated; indicator math reads them in ascending timestamp order.
type PricePoint struct {
	gorm.Model
	CoinID       string    `gorm:"index:idx_coin_ts;not null" json:"coin_id"`
	Timestamp    time.Time `gorm:"index:idx_coin_ts;not null" json:"timestamp"`
	Price        float64   `gorm:"not null" json:"price"`
	VolumeChange float64   `json:"volume_change"`
}
