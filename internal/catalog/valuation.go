package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Valuate converts a counted stock quantity into money.
//
// Flat pricing is quantity x unit price. Special pricing divides the quantity
// into groups rounded to one decimal place, prices each group at the group
// price and rounds the result to a whole monetary unit. Rounding is half away
// from zero.
func Valuate(e Entry, quantity int64) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	q := decimal.NewFromInt(quantity)
	switch e.Pricing.Mode {
	case PricingFlat, "":
		return q.Mul(e.UnitPrice), nil
	case PricingSpecial:
		if e.Pricing.GroupSize <= 0 || !e.Pricing.GroupPrice.Valid {
			return decimal.Zero, ErrMissingPricingParameters
		}
		groups := q.DivRound(decimal.NewFromInt(e.Pricing.GroupSize), 1)
		return groups.Mul(e.Pricing.GroupPrice.Decimal).Round(0), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: catalog: unknown pricing mode %q", shared.ErrValidation, e.Pricing.Mode)
	}
}

// ValuateDelivery converts a delivered quantity into money. Unit products are
// quantity x unit price; packaged products are quantity x package size x unit
// price. A zero packageSize selects the entry's default size.
func ValuateDelivery(e Entry, quantity, packageSize int64) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	q := decimal.NewFromInt(quantity)
	if e.Kind == KindUnit {
		return q.Mul(e.UnitPrice), nil
	}
	size, err := ResolvePackageSize(e, packageSize)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Mul(decimal.NewFromInt(size)).Mul(e.UnitPrice), nil
}

// ResolvePackageSize returns the effective package size for a delivery.
func ResolvePackageSize(e Entry, requested int64) (int64, error) {
	if requested == 0 {
		if def := e.PackageSizes.Default(); def > 0 {
			return def, nil
		}
		return 1, nil
	}
	if !e.PackageSizes.Contains(requested) {
		return 0, fmt.Errorf("%w: %d for product %d", ErrInvalidPackageSize, requested, e.ID)
	}
	return requested, nil
}
