package money

import "github.com/shopspring/decimal"

// All monetary credit values in the system pass through Normalize before
// comparison or persistence: two decimal places, half-up.

const places = 2

func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// FromCents converts a gateway integer minor-unit amount to credit currency.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Equal compares two amounts at normalized precision.
func Equal(a, b decimal.Decimal) bool {
	return Normalize(a).Equal(Normalize(b))
}

// Delta returns reported - local at normalized precision.
func Delta(reported, local decimal.Decimal) decimal.Decimal {
	return Normalize(reported).Sub(Normalize(local))
}
