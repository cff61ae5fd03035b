package trader

import "memecoin-trade-bot-go/internal/config"

// ThresholdStrategy buys on a strong move with strong sentiment and sells on a drop.
type ThresholdStrategy struct {
	BuyVolumeSpike  float64
	BuySentiment    float64
	SellVolumeSpike float64
}

var _ Strategy = ThresholdStrategy{}

// DefaultStrategy returns the stock thresholds: BUY above +50% with sentiment
// above 0.7, SELL below -10%.
func DefaultStrategy() ThresholdStrategy {
	return ThresholdStrategy{BuyVolumeSpike: 0.5, BuySentiment: 0.7, SellVolumeSpike: -0.1}
}

// NewThresholdStrategy builds the strategy from configuration.
func NewThresholdStrategy(cfg config.Policy) ThresholdStrategy {
	return ThresholdStrategy{
		BuyVolumeSpike:  cfg.BuyVolumeSpike,
		BuySentiment:    cfg.BuySentiment,
		SellVolumeSpike: cfg.SellVolumeSpike,
	}
}

func (s ThresholdStrategy) Name() string {
	return "Threshold"
}

func (s ThresholdStrategy) Decide(volumeSpike, sentiment float64) Decision {
	switch {
	case volumeSpike > s.BuyVolumeSpike && sentiment > s.BuySentiment:
		return DecisionBuy
	case volumeSpike < s.SellVolumeSpike:
		return DecisionSell
	default:
		return DecisionHold
	}
}

// Decide applies the default thresholds.
func Decide(volumeSpike, sentiment float64) Decision {
	return DefaultStrategy().Decide(volumeSpike, sentiment)
}
