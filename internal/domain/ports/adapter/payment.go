package adapter

import "math"

// Invoice is a payable prompt correlated with a booking through Token.
type Invoice struct {
	Title       string
	Description string
	Token       string
	Amount      int64 // minor units
	Currency    string
	Label       string
}

// ToMinorUnits converts a catalog price into the provider's integer amount.
func ToMinorUnits(price float64, perUnit int64) int64 {
	return int64(math.Round(price * float64(perUnit)))
}
