package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"memecoin-trade-bot-go/internal/models"

	"go.uber.org/zap"
)

// State is a step of the monitor cycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateGateCheck State = "GATE_CHECK"
	StateBlocked   State = "BLOCKED"
	StateAllowed   State = "ALLOWED"
	StateCollect   State = "COLLECT"
	StateFailed    State = "FAILED"
	StateDecide    State = "DECIDE"
	StateHold      State = "HOLD"
	StateExecute   State = "EXECUTE"
	StatePersist   State = "PERSIST"
	StateDone      State = "DONE"
)

// Outcome summarises how a cycle ended.
type Outcome string

const (
	OutcomeBlocked   Outcome = "blocked"
	OutcomeHold      Outcome = "hold"
	OutcomeFilled    Outcome = "filled"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Request is the input of one monitor cycle.
type Request struct {
	CoinID         string  `json:"coin_id"`
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
	SentimentScore float64 `json:"sentiment_score"`
	StartHour      int     `json:"start_hour"`
	EndHour        int     `json:"end_hour"`
}

// Validate returns a ConfigurationError for unusable input.
func (r Request) Validate() error {
	if r.CoinID == "" {
		return &ConfigurationError{Field: "coin_id", Reason: "required"}
	}
	if r.Symbol == "" {
		return &ConfigurationError{Field: "symbol", Reason: "required"}
	}
	if !(r.Quantity > 0) || math.IsInf(r.Quantity, 0) {
		return &ConfigurationError{Field: "quantity", Reason: fmt.Sprintf("must be a positive number, got %v", r.Quantity)}
	}
	if math.IsNaN(r.SentimentScore) || math.IsInf(r.SentimentScore, 0) {
		return &ConfigurationError{Field: "sentiment_score", Reason: "must be finite"}
	}
	return r.window().Validate()
}

func (r Request) window() TimeWindow {
	return TimeWindow{StartHour: r.StartHour, EndHour: r.EndHour}
}

// CycleResult is the response of one monitor cycle. Message is set when the
// gate blocked the cycle.
type CycleResult struct {
	CoinID       string        `json:"coin_id"`
	Symbol       string        `json:"symbol"`
	Decision     Decision      `json:"decision,omitempty"`
	Price        float64       `json:"price,omitempty"`
	VolumeChange float64       `json:"volume_change"`
	Order        *models.Order `json:"order,omitempty"`
	StopLoss     *models.Order `json:"stop_loss,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	Message      string        `json:"message,omitempty"`
	Trace        []State       `json:"trace"`
}

// MonitorCycle runs gate, collection, decision and execution as one transaction.
type MonitorCycle struct {
	collector Collector
	executor  Executor
	strategy  Strategy
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewMonitorCycle wires a cycle. The gate reads the hour in loc (UTC when nil).
func NewMonitorCycle(collector Collector, executor Executor, strategy Strategy, loc *time.Location, logger *zap.Logger) *MonitorCycle {
	if loc == nil {
		loc = time.UTC
	}
	return &MonitorCycle{
		collector: collector,
		executor:  executor,
		strategy:  strategy,
		location:  loc,
		now:       time.Now,
		logger:    logger.Named("monitor"),
	}
}

// WithClock replaces the wall clock used by the gate.
func (m *MonitorCycle) WithClock(now func() time.Time) *MonitorCycle {
	m.now = now
	return m
}

// Strategy returns the decision strategy in use.
func (m *MonitorCycle) Strategy() Strategy {
	return m.strategy
}

type cycle struct {
	result *CycleResult
	logger *zap.Logger
}

func (c *cycle) enter(s State) {
	c.result.Trace = append(c.result.Trace, s)
	c.logger.Debug("Monitor transition", zap.String("state", string(s)))
}

// Monitor runs one cycle. On error the partial result is still returned so the
// caller can report what happened before the failure.
func (m *MonitorCycle) Monitor(ctx context.Context, req Request) (*CycleResult, error) {
	c := &cycle{
		result: &CycleResult{CoinID: req.CoinID, Symbol: req.Symbol},
		logger: m.logger.With(zap.String("coin_id", req.CoinID), zap.String("symbol", req.Symbol)),
	}
	res := c.result
	c.enter(StateIdle)

	if err := req.Validate(); err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}

	c.enter(StateGateCheck)
	hour := m.now().In(m.location).Hour()
	if !req.window().Allows(hour) {
		c.enter(StateBlocked)
		res.Outcome = OutcomeBlocked
		res.Message = fmt.Sprintf("outside window: hour %d not in [%d, %d)", hour, req.StartHour, req.EndHour)
		c.logger.Info("Trading window closed", zap.Int("hour", hour))
		return res, nil
	}
	c.enter(StateAllowed)

	c.enter(StateCollect)
	obs, err := m.collector.Collect(ctx, req.CoinID)
	if err != nil {
		c.enter(StateFailed)
		res.Outcome = OutcomeFailed
		c.logger.Warn("Collection failed, skipping cycle", zap.Error(err))
		return res, err
	}
	res.Price = obs.LatestPrice
	res.VolumeChange = obs.VolumeChange

	c.enter(StateDecide)
	res.Decision = m.strategy.Decide(obs.VolumeChange, req.SentimentScore)
	c.logger.Info("Decision made",
		zap.String("strategy", m.strategy.Name()),
		zap.String("decision", string(res.Decision)),
		zap.Float64("price", obs.LatestPrice),
		zap.Float64("volume_change", obs.VolumeChange),
		zap.Float64("sentiment", req.SentimentScore))

	if res.Decision == DecisionHold {
		c.enter(StateHold)
		res.Outcome = OutcomeHold
		return res, nil
	}

	c.enter(StateExecute)
	exec, err := m.executor.Execute(ctx, res.Decision, req.Symbol, req.Quantity, obs.LatestPrice)
	if err == nil && exec != nil && exec.Duplicate != nil {
		res.Outcome = OutcomeDuplicate
		res.Message = fmt.Sprintf("%s for %s already executed at %s", res.Decision, req.Symbol, exec.Duplicate.Timestamp.Format(time.RFC3339))
		c.enter(StateDone)
		return res, nil
	}
	if exec != nil {
		c.enter(StatePersist)
		res.Order = exec.Order
		res.StopLoss = exec.StopLoss
	}
	switch {
	case exec != nil && exec.Degraded:
		res.Outcome = OutcomeDegraded
	case err != nil:
		res.Outcome = OutcomeFailed
	default:
		res.Outcome = OutcomeFilled
	}
	// A degraded BUY is stored, so the cycle completes while still reporting the stop-loss error.
	if res.Outcome == OutcomeFailed {
		c.enter(StateFailed)
	} else {
		c.enter(StateDone)
	}
	return res, err
}
