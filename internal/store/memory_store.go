package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memecoin-trade-bot-go/internal/models"
)

// MemoryStore keeps every record in process memory. Intended for tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    uint
	prices    []models.PricePoint
	sentiment []models.SentimentScore
	orders    []models.Order
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) stamp() (uint, time.Time) {
	m.nextID++
	return m.nextID, time.Now()
}

func (m *MemoryStore) AppendPrice(ctx context.Context, p *models.PricePoint) error {
	if err := validatePrice(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.prices) - 1; i >= 0; i-- {
		if m.prices[i].CoinID == p.CoinID {
			if p.Timestamp.Before(m.prices[i].Timestamp) {
				return fmt.Errorf("%w: %s at %s precedes %s", ErrOutOfOrder, p.CoinID, p.Timestamp, m.prices[i].Timestamp)
			}
			break
		}
	}

	p.ID, p.CreatedAt = m.stamp()
	p.UpdatedAt = p.CreatedAt
	m.prices = append(m.prices, *p)
	return nil
}

func (m *MemoryStore) AppendSentiment(ctx context.Context, s *models.SentimentScore) error {
	if err := validateSentiment(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID, s.CreatedAt = m.stamp()
	s.UpdatedAt = s.CreatedAt
	m.sentiment = append(m.sentiment, *s)
	return nil
}

func (m *MemoryStore) AppendOrder(ctx context.Context, o *models.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendOrderLocked(o)
	return nil
}

func (m *MemoryStore) appendOrderLocked(o *models.Order) {
	o.ID, o.CreatedAt = m.stamp()
	o.UpdatedAt = o.CreatedAt
	m.orders = append(m.orders, *o)
}

// CommitExecution appends every leg of e under a single lock acquisition.
func (m *MemoryStore) CommitExecution(ctx context.Context, e *Execution) error {
	if err := validateExecution(e); err != nil {
		return err
	}
	prepareExecution(e)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendOrderLocked(e.Entry)
	if e.StopLoss != nil {
		parentID := e.Entry.ID
		e.StopLoss.ParentID = &parentID
		m.appendOrderLocked(e.StopLoss)
	}
	return nil
}

func matches(key string, ts time.Time, f Filter) bool {
	if f.Key != "" && key != f.Key {
		return false
	}
	return f.Since.IsZero() || !ts.Before(f.Since)
}

// window sorts the selected indexes by (timestamp, id) and applies order and limit.
func window(n int, less func(i, j int) bool, f Filter) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if f.Descending {
			return less(idx[b], idx[a])
		}
		return less(idx[a], idx[b])
	})
	if f.Limit > 0 && len(idx) > f.Limit {
		idx = idx[:f.Limit]
	}
	return idx
}

func (m *MemoryStore) QueryPrices(ctx context.Context, f Filter) ([]models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sel []models.PricePoint
	for _, p := range m.prices {
		if matches(p.CoinID, p.Timestamp, f) {
			sel = append(sel, p)
		}
	}
	idx := window(len(sel), func(i, j int) bool {
		if sel[i].Timestamp.Equal(sel[j].Timestamp) {
			return sel[i].ID < sel[j].ID
		}
		return sel[i].Timestamp.Before(sel[j].Timestamp)
	}, f)

	out := make([]models.PricePoint, 0, len(idx))
	for _, i := range idx {
		out = append(out, sel[i])
	}
	return out, nil
}

func (m *MemoryStore) QuerySentiment(ctx context.Context, f Filter) ([]models.SentimentScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sel []models.SentimentScore
	for _, s := range m.sentiment {
		if matches(s.CoinID, s.Timestamp, f) {
			sel = append(sel, s)
		}
	}
	idx := window(len(sel), func(i, j int) bool {
		if sel[i].Timestamp.Equal(sel[j].Timestamp) {
			return sel[i].ID < sel[j].ID
		}
		return sel[i].Timestamp.Before(sel[j].Timestamp)
	}, f)

	out := make([]models.SentimentScore, 0, len(idx))
	for _, i := range idx {
		out = append(out, sel[i])
	}
	return out, nil
}

func (m *MemoryStore) QueryOrders(ctx context.Context, f Filter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sel []models.Order
	for _, o := range m.orders {
		if f.PendingOnly && !o.NeedsReconciliation {
			continue
		}
		if matches(o.Symbol, o.Timestamp, f) {
			sel = append(sel, o)
		}
	}
	idx := window(len(sel), func(i, j int) bool {
		if sel[i].Timestamp.Equal(sel[j].Timestamp) {
			return sel[i].ID < sel[j].ID
		}
		return sel[i].Timestamp.Before(sel[j].Timestamp)
	}, f)

	out := make([]models.Order, 0, len(idx))
	for _, i := range idx {
		out = append(out, sel[i])
	}
	return out, nil
}

func (m *MemoryStore) Aggregate(ctx context.Context, entity Entity, op AggregateOp, f Filter) (float64, bool, error) {
	if err := validateAggregate(entity, op); err != nil {
		return 0, false, err
	}

	agg := Filter{Key: f.Key, Since: f.Since, PendingOnly: f.PendingOnly}
	var values []float64
	switch entity {
	case EntityPrices:
		rows, _ := m.QueryPrices(ctx, agg)
		for _, r := range rows {
			values = append(values, r.Price)
		}
	case EntitySentiment:
		rows, _ := m.QuerySentiment(ctx, agg)
		for _, r := range rows {
			values = append(values, r.Score)
		}
	case EntityOrders:
		rows, _ := m.QueryOrders(ctx, agg)
		for _, r := range rows {
			values = append(values, r.Quantity)
		}
	}

	if op == OpCount {
		return float64(len(values)), true, nil
	}
	if len(values) == 0 {
		return 0, false, nil
	}

	result := values[0]
	sum := 0.0
	for _, v := range values {
		sum += v
		result = pick(op, result, v)
	}
	switch op {
	case OpSum:
		return sum, true, nil
	case OpAvg:
		return sum / float64(len(values)), true, nil
	}
	return result, true, nil
}

func pick(op AggregateOp, current, v float64) float64 {
	switch op {
	case OpMin:
		return min(current, v)
	case OpMax:
		return max(current, v)
	}
	return current
}
