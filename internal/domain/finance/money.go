package finance

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands grouping and two decimals,
// the form used in user-facing messages
func FormatAmount(d decimal.Decimal) string {
	return amountPrinter.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// DefaultTolerance is the largest debit/credit or clearing difference treated
// as zero when none is configured
func DefaultTolerance() decimal.Decimal {
	return decimal.New(1, -2)
}

func withinTolerance(d, tolerance decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(tolerance)
}
