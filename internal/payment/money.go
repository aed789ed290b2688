package payment

import "github.com/shopspring/decimal"

// ToMinorUnits converts a major-unit amount (rupees) to minor units (paise),
// rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) float64 {
	value, _ := decimal.New(minor, -2).Float64()
	return value
}
