package trader

// Decision is the action chosen for one cycle.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// Strategy maps the collected signal to a decision.
// Implementations must be pure: the same inputs always give the same decision.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Decide picks BUY, SELL or HOLD from the price move and the sentiment score.
	Decide(volumeSpike, sentiment float64) Decision
}
