// Package cart holds the authoritative shopping cart: an ordered list of
// line items keyed by product id, persisted locally after every mutation
// and broadcasting item counts to registered observers.
package cart

import "github.com/shopspring/decimal"

// MaxQuantity is the per-product quantity cap. Mutations never raise a
// line item above it and never store one below 1.
const MaxQuantity = 10

// LineItem is one product entry in the cart.
type LineItem struct {
	ProductID string
	Name      string
	ImageRef  string
	UnitPrice decimal.Decimal
	Unit      string
	Quantity  int
}

// LineTotal returns UnitPrice multiplied by Quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Increment raises the quantity by one, respecting MaxQuantity.
func (i *LineItem) Increment() {
	if i.Quantity < MaxQuantity {
		i.Quantity++
	}
}

// Decrement lowers the quantity by one, never below 1.
func (i *LineItem) Decrement() {
	if i.Quantity > 1 {
		i.Quantity--
	}
}

// clampQuantity normalizes q into [1, MaxQuantity]. Out-of-range input is
// adjusted silently; callers never see an error for it.
func clampQuantity(q int) int {
	if q <= 0 {
		return 1
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
