package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

// CurrencyPrecision is the number of decimal places commission amounts
// are rounded to.
const CurrencyPrecision = 2

var ErrInvalidInput = errors.New("invalid_commission_input")

var one = decimal.NewFromInt(1)

// Compute returns the commission owed on a sale amount at the given
// rate. Pure and deterministic; no I/O.
func Compute(saleAmount decimal.Decimal, rate decimal.Decimal) (decimal.Decimal, error) {
	if saleAmount.IsNegative() {
		return decimal.Zero, ErrInvalidInput
	}
	if rate.IsNegative() || rate.GreaterThan(one) {
		return decimal.Zero, ErrInvalidInput
	}
	return saleAmount.Mul(rate).Round(CurrencyPrecision), nil
}
