package trader

import (
	"errors"
	"testing"

	"memecoin-trade-bot-go/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	testCases := []struct {
		name      string
		spike     float64
		sentiment float64
		expected  Decision
	}{
		{"Spike with strong sentiment buys", 0.6, 0.8, DecisionBuy},
		{"Drop sells", -0.2, 0.9, DecisionSell},
		{"Small move holds", 0.1, 0.9, DecisionHold},
		{"Spike threshold is exclusive", 0.5, 0.9, DecisionHold},
		{"Sentiment threshold is exclusive", 0.9, 0.7, DecisionHold},
		{"Spike with weak sentiment holds", 2.0, 0.2, DecisionHold},
		{"Sell threshold is exclusive", -0.1, 0.0, DecisionHold},
		{"Crash sells regardless of sentiment", -0.9, 0.0, DecisionSell},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Decide(tc.spike, tc.sentiment))
			// Pure: repeated calls agree.
			assert.Equal(t, Decide(tc.spike, tc.sentiment), Decide(tc.spike, tc.sentiment))
		})
	}
}

func TestNewThresholdStrategy(t *testing.T) {
	s := NewThresholdStrategy(config.Policy{BuyVolumeSpike: 0.2, BuySentiment: 0.5, SellVolumeSpike: -0.3})

	assert.Equal(t, "Threshold", s.Name())
	assert.Equal(t, DecisionBuy, s.Decide(0.25, 0.6))
	assert.Equal(t, DecisionHold, s.Decide(-0.2, 0.6))
	assert.Equal(t, DecisionSell, s.Decide(-0.31, 0.6))
	assert.Equal(t, DefaultStrategy(), NewThresholdStrategy(config.Policy{BuyVolumeSpike: 0.5, BuySentiment: 0.7, SellVolumeSpike: -0.1}))
}

func TestTimeWindow_Allows(t *testing.T) {
	w := TimeWindow{StartHour: 8, EndHour: 22}

	assert.False(t, w.Allows(7))
	assert.True(t, w.Allows(8), "start hour is inside the window")
	assert.True(t, w.Allows(15))
	assert.True(t, w.Allows(21))
	assert.False(t, w.Allows(22), "end hour is outside the window")
	assert.False(t, w.Allows(23))

	allDay := TimeWindow{StartHour: 0, EndHour: 24}
	for h := 0; h < 24; h++ {
		assert.True(t, allDay.Allows(h))
	}
}

func TestTimeWindow_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		window TimeWindow
		field  string
	}{
		{"Valid", TimeWindow{8, 22}, ""},
		{"Whole day", TimeWindow{0, 24}, ""},
		{"Negative start", TimeWindow{-1, 10}, "start_hour"},
		{"Start past midnight", TimeWindow{24, 24}, "start_hour"},
		{"End too large", TimeWindow{0, 25}, "end_hour"},
		{"Empty window", TimeWindow{10, 10}, "end_hour"},
		{"Inverted window", TimeWindow{20, 4}, "end_hour"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.window.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			if assert.True(t, errors.As(err, &cfgErr)) {
				assert.Equal(t, tc.field, cfgErr.Field)
			}
		})
	}
}
