package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket   = "MARKET"
	TypeStopLoss = "STOP_LOSS"
)

// Order is a persisted exchange order. Every row maps to exactly one exchange call.
// Legs placed by the same execution share ExecutionID; a stop-loss row points at
// its BUY row through ParentID.
type Order struct {
	gorm.Model
	ExecutionID         string    `gorm:"index;not null" json:"execution_id"`
	ParentID            *uint     `gorm:"index" json:"parent_id,omitempty"`
	Symbol              string    `gorm:"index;not null" json:"symbol"`
	Side                string    `gorm:"not null" json:"side"` // "BUY" or "SELL"
	Type                string    `gorm:"not null" json:"type"` // "MARKET" or "STOP_LOSS"
	Quantity            float64   `json:"quantity"`
	FillPrice           float64   `json:"fill_price"`
	StopPrice           float64   `json:"stop_price,omitempty"`
	ExchangeOrderID     int64     `json:"exchange_order_id"`
	Status              string    `json:"status"`
	Timestamp           time.Time `gorm:"index" json:"timestamp"`
	IsSimulation        bool      `json:"is_simulation"`
	NeedsReconciliation bool      `gorm:"index" json:"needs_reconciliation"`
	ReconciliationNote  string    `json:"reconciliation_note,omitempty"`
}
