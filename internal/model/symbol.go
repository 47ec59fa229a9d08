package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches exchange-style tickers: 1-10 characters, starting
// with a letter, allowing digits, dots and dashes (BRK.B, RDS-A).
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// ErrInvalidSymbol is returned for symbols that do not look like tickers.
var ErrInvalidSymbol = errors.New("model: invalid symbol")

// NormalizeSymbol trims, uppercases, and validates a ticker symbol.
func NormalizeSymbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(symbol) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return symbol, nil
}
