package trader

import (
	"fmt"

	"memecoin-trade-bot-go/internal/transport"
)

// Leg identifies which exchange call of an execution failed.
type Leg string

const (
	LegEntry    Leg = "entry"
	LegStopLoss Leg = "stop_loss"
)

// ConfigurationError rejects a request before it reaches the gate.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CollectionError aborts a cycle before any order is attempted.
type CollectionError struct {
	CoinID string
	Reason string
	Err    error
}

func (e *CollectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collect %s: %s: %v", e.CoinID, e.Reason, e.Err)
	}
	return fmt.Sprintf("collect %s: %s", e.CoinID, e.Reason)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Transient reports whether the underlying source failure may clear on its own.
func (e *CollectionError) Transient() bool {
	return e.Err != nil && transport.IsTransient(e.Err)
}

// ExchangeError is a rejected or failed order leg. It is never retried.
type ExchangeError struct {
	Leg    Leg
	Symbol string
	Err    error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s leg for %s: %v", e.Leg, e.Symbol, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
