package exchange

import (
	"fmt"
	"strings"
)

// SplitSymbol splits a canonical "BASE/QUOTE" symbol. Settlement suffixes such as
// ":USDT" are ignored.
func SplitSymbol(symbol string) (base, quote string, err error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid symbol %q, want BASE/QUOTE", symbol)
	}
	return parts[0], parts[1], nil
}

// Canonical joins a base and quote into "BASE/QUOTE".
func Canonical(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// Base returns the base currency of a canonical symbol, or the input upper-cased
// when it cannot be split.
func Base(symbol string) string {
	base, _, err := SplitSymbol(symbol)
	if err != nil {
		return strings.ToUpper(symbol)
	}
	return base
}

// fromConcatenated turns "BTCUSDT" into "BTC/USDT" for a known quote suffix.
func fromConcatenated(raw, quote string) (string, bool) {
	raw = strings.ToUpper(raw)
	if len(raw) <= len(quote) || !strings.HasSuffix(raw, quote) {
		return "", false
	}
	return Canonical(raw[:len(raw)-len(quote)], quote), true
}

// concatenated turns "BTC/USDT" into "BTCUSDT", the Binance and Bybit linear format.
func concatenated(symbol string) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}
