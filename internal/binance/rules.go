package binance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter represents a single filter for a symbol.
// LOT_SIZE drives quantity rounding and PRICE_FILTER drives stop price rounding.
type Filter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
	MinPrice   string `json:"minPrice,omitempty"`
	TickSize   string `json:"tickSize,omitempty"`
}

func (s SymbolInfo) filter(filterType string) (Filter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return Filter{}, false
}

// floorToStep floors value to a multiple of step. A zero or malformed step leaves value unchanged.
func floorToStep(value decimal.Decimal, step string) decimal.Decimal {
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return value
	}
	return value.Div(d).Floor().Mul(d)
}

// FormatQuantity floors quantity to the LOT_SIZE step and enforces minQty.
func (s SymbolInfo) FormatQuantity(quantity float64) (decimal.Decimal, error) {
	qty := decimal.NewFromFloat(quantity)
	lot, ok := s.filter("LOT_SIZE")
	if !ok {
		return qty, nil
	}

	floored := floorToStep(qty, lot.StepSize)
	if minQty, err := decimal.NewFromString(lot.MinQty); err == nil && floored.LessThan(minQty) {
		return decimal.Zero, fmt.Errorf("quantity %s is less than minQty %s for symbol %s", floored, minQty, s.Symbol)
	}
	if !floored.IsPositive() {
		return decimal.Zero, fmt.Errorf("quantity %v rounds to zero for symbol %s", quantity, s.Symbol)
	}
	return floored, nil
}

// FormatPrice floors price to the PRICE_FILTER tick size.
func (s SymbolInfo) FormatPrice(price float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	pf, ok := s.filter("PRICE_FILTER")
	if !ok {
		return p
	}
	return floorToStep(p, pf.TickSize)
}
