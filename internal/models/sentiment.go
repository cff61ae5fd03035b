package models

import (
	"time"

	"gorm.io/gorm"
)

// SentimentScore is an externally supplied sentiment reading for a coin, expected in [0,1].
type SentimentScore struct {
	gorm.Model
	CoinID    string    `gorm:"index;not null" json:"coin_id"`
	Score     float64   `json:"score"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}
