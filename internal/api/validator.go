package api

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Validator checks path and query input before it reaches the store.
type Validator struct {
	coinIDRegex *regexp.Regexp
	symbolRegex *regexp.Regexp
}

var (
	validatorInstance *Validator
	validatorOnce     sync.Once
)

// GetValidator returns the singleton validator instance.
func GetValidator() *Validator {
	validatorOnce.Do(func() {
		validatorInstance = &Validator{
			// CoinGecko ids: lowercase words joined by hyphens, e.g. "shiba-inu".
			coinIDRegex: regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`),
			// Exchange symbols: base and quote asset concatenated, e.g. "DOGEUSDT".
			symbolRegex: regexp.MustCompile(`^[A-Z0-9]{5,20}$`),
		}
	})
	return validatorInstance
}

// CoinID validates an optional coin id; empty input is returned unchanged.
func (v *Validator) CoinID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", nil
	}
	if !v.coinIDRegex.MatchString(id) {
		return "", fmt.Errorf("invalid coin_id %q", raw)
	}
	return id, nil
}

// Symbol validates an optional symbol, upper-casing it.
func (v *Validator) Symbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return "", nil
	}
	if !v.symbolRegex.MatchString(symbol) {
		return "", fmt.Errorf("invalid symbol %q", raw)
	}
	return symbol, nil
}

// Limit parses the limit query parameter, falling back to def.
func (v *Validator) Limit(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be a valid number")
	}
	if limit < 1 || limit > MaxListLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", MaxListLimit)
	}
	return limit, nil
}
