package store

import (
	"context"
	"database/sql"
	"fmt"

	"memecoin-trade-bot-go/internal/models"

	"gorm.io/gorm"
)

// GormStore persists records through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore wraps an already migrated database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AppendPrice inserts p, rejecting points older than the coin's latest one.
func (s *GormStore) AppendPrice(ctx context.Context, p *models.PricePoint) error {
	if err := validatePrice(p); err != nil {
		return err
	}
	p.Timestamp = p.Timestamp.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.PricePoint
		res := tx.Where("coin_id = ?", p.CoinID).Order("timestamp desc").Limit(1).Find(&latest)
		if res.Error != nil {
			return fmt.Errorf("failed to read latest price for %s: %w", p.CoinID, res.Error)
		}
		if res.RowsAffected > 0 && p.Timestamp.Before(latest.Timestamp) {
			return fmt.Errorf("%w: %s at %s precedes %s", ErrOutOfOrder, p.CoinID, p.Timestamp, latest.Timestamp)
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to append price: %w", err)
		}
		return nil
	})
}

func (s *GormStore) AppendSentiment(ctx context.Context, sc *models.SentimentScore) error {
	if err := validateSentiment(sc); err != nil {
		return err
	}
	sc.Timestamp = sc.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(sc).Error; err != nil {
		return fmt.Errorf("failed to append sentiment: %w", err)
	}
	return nil
}

func (s *GormStore) AppendOrder(ctx context.Context, o *models.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	o.Timestamp = o.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("failed to append order: %w", err)
	}
	return nil
}

// CommitExecution writes every leg of e in one transaction.
func (s *GormStore) CommitExecution(ctx context.Context, e *Execution) error {
	if err := validateExecution(e); err != nil {
		return err
	}
	prepareExecution(e)
	e.Entry.Timestamp = e.Entry.Timestamp.UTC()
	if e.StopLoss != nil {
		e.StopLoss.Timestamp = e.StopLoss.Timestamp.UTC()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e.Entry).Error; err != nil {
			return fmt.Errorf("failed to write entry order: %w", err)
		}
		if e.StopLoss == nil {
			return nil
		}
		parentID := e.Entry.ID
		e.StopLoss.ParentID = &parentID
		if err := tx.Create(e.StopLoss).Error; err != nil {
			return fmt.Errorf("failed to write stop-loss order: %w", err)
		}
		return nil
	})
}

func (s *GormStore) scoped(ctx context.Context, model interface{}, keyColumn string, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(model)
	if f.Key != "" {
		q = q.Where(keyColumn+" = ?", f.Key)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since.UTC())
	}
	return q
}

func ordered(q *gorm.DB, f Filter) *gorm.DB {
	if f.Descending {
		q = q.Order("timestamp desc").Order("id desc")
	} else {
		q = q.Order("timestamp asc").Order("id asc")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

func (s *GormStore) QueryPrices(ctx context.Context, f Filter) ([]models.PricePoint, error) {
	var out []models.PricePoint
	if err := ordered(s.scoped(ctx, &models.PricePoint{}, "coin_id", f), f).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	return out, nil
}

func (s *GormStore) QuerySentiment(ctx context.Context, f Filter) ([]models.SentimentScore, error) {
	var out []models.SentimentScore
	if err := ordered(s.scoped(ctx, &models.SentimentScore{}, "coin_id", f), f).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query sentiment: %w", err)
	}
	return out, nil
}

func (s *GormStore) QueryOrders(ctx context.Context, f Filter) ([]models.Order, error) {
	q := s.scoped(ctx, &models.Order{}, "symbol", f)
	if f.PendingOnly {
		q = q.Where("needs_reconciliation = ?", true)
	}
	var out []models.Order
	if err := ordered(q, f).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return out, nil
}

func (s *GormStore) Aggregate(ctx context.Context, entity Entity, op AggregateOp, f Filter) (float64, bool, error) {
	if err := validateAggregate(entity, op); err != nil {
		return 0, false, err
	}

	var q *gorm.DB
	var column string
	switch entity {
	case EntityPrices:
		q, column = s.scoped(ctx, &models.PricePoint{}, "coin_id", f), "price"
	case EntitySentiment:
		q, column = s.scoped(ctx, &models.SentimentScore{}, "coin_id", f), "score"
	case EntityOrders:
		q, column = s.scoped(ctx, &models.Order{}, "symbol", f), "quantity"
		if f.PendingOnly {
			q = q.Where("needs_reconciliation = ?", true)
		}
	}

	var result sql.NullFloat64
	if err := q.Select(fmt.Sprintf("%s(%s)", op, column)).Row().Scan(&result); err != nil {
		return 0, false, fmt.Errorf("failed to aggregate %s %s: %w", op, entity, err)
	}
	if op == OpCount {
		return result.Float64, true, nil
	}
	return result.Float64, result.Valid, nil
}
