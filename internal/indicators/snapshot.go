package indicators

import (
	"errors"
	"time"
)

// Snapshot is the indicator set reported for a coin. Nil fields mean the history
// was too short for that indicator.
type Snapshot struct {
	Price      float64     `json:"price"`
	Min24h     float64     `json:"min24h"`
	Max24h     float64     `json:"max24h"`
	Min7d      float64     `json:"min7d"`
	Max7d      float64     `json:"max7d"`
	Var24h     *float64    `json:"var24h"`
	SMA9       *float64    `json:"sma9"`
	SMA21      *float64    `json:"sma21"`
	SMA50      *float64    `json:"sma50"`
	RSI        *float64    `json:"rsi"`
	Samples    int         `json:"samples"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
}

func optional(v float64, err error) (*float64, error) {
	if errors.Is(err, ErrInsufficientData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// NewSnapshot computes every indicator for an ascending price series.
// timestamps may be nil; when given it must align with prices.
func NewSnapshot(prices []float64, timestamps []time.Time) (*Snapshot, error) {
	rs, err := Range(prices)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Price:      rs.Last,
		Min24h:     rs.Min24h,
		Max24h:     rs.Max24h,
		Min7d:      rs.MinAll,
		Max7d:      rs.MaxAll,
		Samples:    len(prices),
		Timestamps: timestamps,
	}

	if snap.Var24h, err = optional(Variation24h(prices)); err != nil {
		return nil, err
	}
	if snap.SMA9, err = optional(SMA(prices, 9)); err != nil {
		return nil, err
	}
	if snap.SMA21, err = optional(SMA(prices, 21)); err != nil {
		return nil, err
	}
	if snap.SMA50, err = optional(SMA(prices, 50)); err != nil {
		return nil, err
	}
	if snap.RSI, err = optional(RSI(prices, DefaultRSIPeriod)); err != nil {
		return nil, err
	}
	return snap, nil
}
