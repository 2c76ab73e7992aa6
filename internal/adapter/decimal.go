package adapter

import "github.com/shopspring/decimal"

// decimalFromFloat converts a float64 field (venues that send native JSON
// numbers rather than strings) into decimal.Decimal.
func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
