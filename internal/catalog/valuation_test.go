package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func specialEntry(size int64, price string) Entry {
	return Entry{
		ID:           1,
		Name:         "Beaufort",
		UnitPrice:    dec("500"),
		PackageSizes: Single(12),
		Kind:         KindPackage,
		Pricing:      Pricing{Mode: PricingSpecial, GroupSize: size, GroupPrice: decimal.NewNullDecimal(dec(price))},
	}
}

func TestValuateFlat(t *testing.T) {
	e := Entry{ID: 1, Name: "Castel", UnitPrice: dec("500"), Pricing: Pricing{Mode: PricingFlat}}
	v, err := Valuate(e, 10)
	require.NoError(t, err)
	require.True(t, v.Equal(dec("5000")), v.String())
}

func TestValuateSpecial(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		want     string
	}{
		{name: "fractional groups", quantity: 15, want: "6250"},
		{name: "whole groups", quantity: 12, want: "5000"},
		{name: "group rounded to one decimal", quantity: 7, want: "3000"}, // 7/6 = 1.1666 -> 1.2
		{name: "zero", quantity: 0, want: "0"},
	}
	e := specialEntry(6, "2500")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Valuate(e, tc.quantity)
			require.NoError(t, err)
			require.True(t, v.Equal(dec(tc.want)), "got %s", v)
		})
	}
}

func TestValuateSpecialRoundsToWholeUnit(t *testing.T) {
	e := specialEntry(3, "333")
	// 1/3 -> 0.3 groups, 0.3 x 333 = 99.9 -> 100
	v, err := Valuate(e, 1)
	require.NoError(t, err)
	require.True(t, v.Equal(dec("100")), v.String())
}

func TestValuateErrors(t *testing.T) {
	flat := Entry{ID: 1, Name: "Castel", UnitPrice: dec("500"), Pricing: Pricing{Mode: PricingFlat}}
	_, err := Valuate(flat, -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	broken := specialEntry(0, "2500")
	_, err = Valuate(broken, 4)
	require.ErrorIs(t, err, ErrMissingPricingParameters)

	noPrice := specialEntry(6, "0")
	noPrice.Pricing.GroupPrice = decimal.NullDecimal{}
	_, err = Valuate(noPrice, 4)
	require.ErrorIs(t, err, ErrMissingPricingParameters)
}

func TestValuateDelivery(t *testing.T) {
	crate := Entry{ID: 2, Name: "33 Export", UnitPrice: dec("400"), PackageSizes: Variants(12, 24), Kind: KindPackage}
	v, err := ValuateDelivery(crate, 3, 0)
	require.NoError(t, err)
	require.True(t, v.Equal(dec("14400")), v.String())

	v, err = ValuateDelivery(crate, 3, 24)
	require.NoError(t, err)
	require.True(t, v.Equal(dec("28800")), v.String())

	_, err = ValuateDelivery(crate, 3, 6)
	require.ErrorIs(t, err, ErrInvalidPackageSize)

	_, err = ValuateDelivery(crate, -2, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	piece := Entry{ID: 3, Name: "Whisky shot", UnitPrice: dec("1500"), PackageSizes: Single(1), Kind: KindUnit}
	v, err = ValuateDelivery(piece, 4, 99)
	require.NoError(t, err)
	require.True(t, v.Equal(dec("6000")), v.String())
}
