// Package store is the append-only log of price points, sentiment scores and orders.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memecoin-trade-bot-go/internal/models"
)

// Entity names a persisted record kind for aggregate queries.
type Entity string

const (
	EntityPrices    Entity = "prices"
	EntitySentiment Entity = "sentiment"
	EntityOrders    Entity = "orders"
)

// AggregateOp is a SQL-style aggregate over an entity's value column
// (price, score or quantity).
type AggregateOp string

const (
	OpCount AggregateOp = "COUNT"
	OpAvg   AggregateOp = "AVG"
	OpMin   AggregateOp = "MIN"
	OpMax   AggregateOp = "MAX"
	OpSum   AggregateOp = "SUM"
)

var (
	// ErrInvalidRecord is returned for records that violate the data model.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrOutOfOrder is returned when a price point is older than the coin's latest one.
	ErrOutOfOrder = errors.New("price point out of order")
)

// Filter narrows ordered and aggregate queries. Key is the coin id for prices and
// sentiment and the symbol for orders. Results are ascending by timestamp unless
// Descending is set; Limit applies after ordering.
type Filter struct {
	Key         string
	Since       time.Time
	Limit       int
	Descending  bool
	PendingOnly bool // orders only
}

// Execution groups the legs of one order placement so they are committed together.
// For a BUY without StopLoss the entry is stored flagged for reconciliation with
// StopFailure as the note.
type Execution struct {
	Entry       *models.Order
	StopLoss    *models.Order
	StopFailure string
}

// Store is the persistence boundary of the trading pipeline.
type Store interface {
	AppendPrice(ctx context.Context, p *models.PricePoint) error
	AppendSentiment(ctx context.Context, s *models.SentimentScore) error
	AppendOrder(ctx context.Context, o *models.Order) error
	CommitExecution(ctx context.Context, e *Execution) error

	QueryPrices(ctx context.Context, f Filter) ([]models.PricePoint, error)
	QuerySentiment(ctx context.Context, f Filter) ([]models.SentimentScore, error)
	QueryOrders(ctx context.Context, f Filter) ([]models.Order, error)

	// Aggregate returns the op over matching rows; ok is false when no row matched
	// (COUNT always reports ok).
	Aggregate(ctx context.Context, entity Entity, op AggregateOp, f Filter) (value float64, ok bool, err error)
}

func validatePrice(p *models.PricePoint) error {
	if p.CoinID == "" {
		return fmt.Errorf("%w: price point without coin id", ErrInvalidRecord)
	}
	if !(p.Price > 0) {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidRecord, p.Price)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: price point without timestamp", ErrInvalidRecord)
	}
	return nil
}

func validateSentiment(s *models.SentimentScore) error {
	if s.CoinID == "" {
		return fmt.Errorf("%w: sentiment without coin id", ErrInvalidRecord)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: sentiment without timestamp", ErrInvalidRecord)
	}
	return nil
}

func validateOrder(o *models.Order) error {
	if o.Symbol == "" || o.ExecutionID == "" {
		return fmt.Errorf("%w: order needs symbol and execution id", ErrInvalidRecord)
	}
	if o.Side != models.SideBuy && o.Side != models.SideSell {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidRecord, o.Side)
	}
	if !(o.Quantity > 0) {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidRecord, o.Quantity)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("%w: order without timestamp", ErrInvalidRecord)
	}
	return nil
}

func validateExecution(e *Execution) error {
	if e == nil || e.Entry == nil {
		return fmt.Errorf("%w: execution without entry order", ErrInvalidRecord)
	}
	if err := validateOrder(e.Entry); err != nil {
		return err
	}
	if e.StopLoss == nil {
		return nil
	}
	if e.Entry.Side != models.SideBuy {
		return fmt.Errorf("%w: stop-loss attached to a %s entry", ErrInvalidRecord, e.Entry.Side)
	}
	if e.StopLoss.ExecutionID != e.Entry.ExecutionID {
		return fmt.Errorf("%w: stop-loss belongs to another execution", ErrInvalidRecord)
	}
	return validateOrder(e.StopLoss)
}

// prepareExecution applies the reconciliation flag for an unprotected BUY.
func prepareExecution(e *Execution) {
	if e.Entry.Side == models.SideBuy && e.StopLoss == nil {
		e.Entry.NeedsReconciliation = true
		e.Entry.ReconciliationNote = e.StopFailure
		if e.Entry.ReconciliationNote == "" {
			e.Entry.ReconciliationNote = "stop-loss not placed"
		}
	}
}

func validateAggregate(entity Entity, op AggregateOp) error {
	switch entity {
	case EntityPrices, EntitySentiment, EntityOrders:
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
	switch op {
	case OpCount, OpAvg, OpMin, OpMax, OpSum:
	default:
		return fmt.Errorf("unknown aggregate op %q", op)
	}
	return nil
}
