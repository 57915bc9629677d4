package format

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultSymbol is the taka sign used when no symbol is configured.
const DefaultSymbol = "৳"

var printer = message.NewPrinter(language.English)

// Currency formats a whole-unit amount with the currency symbol and grouping.
// Example: Currency(12345, "৳") => "৳12,345"
func Currency(amount int64, symbol string) string {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if amount < 0 {
		return "-" + symbol + printer.Sprintf("%d", -amount)
	}
	return symbol + printer.Sprintf("%d", amount)
}

// Number renders v without trailing zeros ("25", "12.5").
func Number(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// CurrencyNumber is Currency for fractional amounts; whole values keep grouping.
func CurrencyNumber(v float64, symbol string) string {
	if v == float64(int64(v)) {
		return Currency(int64(v), symbol)
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return symbol + Number(v)
}
