package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Kind tells how a product is counted on delivery.
type Kind string

const (
	// KindPackage products arrive in crates/packs of PackageSizes units.
	KindPackage Kind = "package"
	// KindUnit products arrive and are priced by the piece.
	KindUnit Kind = "unit"
)

// PricingMode enumerates supported valuation rules.
type PricingMode string

const (
	// PricingFlat values quantity x unit price.
	PricingFlat PricingMode = "flat"
	// PricingSpecial values whole or fractional groups at a group price.
	PricingSpecial PricingMode = "special"
)

// Pricing holds the valuation parameters of an entry.
type Pricing struct {
	Mode       PricingMode         `json:"mode"`
	GroupSize  int64               `json:"group_size,omitempty"`
	GroupPrice decimal.NullDecimal `json:"group_price"`
}

// Entry is a sellable product definition.
type Entry struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	PackageSizes PackageSizes    `json:"package_sizes"`
	Kind         Kind            `json:"kind"`
	Pricing      Pricing         `json:"pricing"`
}

// Patch carries a partial update. Nil fields are left untouched.
type Patch struct {
	Name         *string          `json:"name"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	PackageSizes *PackageSizes    `json:"package_sizes"`
	Kind         *Kind            `json:"kind"`
	Pricing      *Pricing         `json:"pricing"`
}

// PackageSizes is either a single size or an ordered list of interchangeable
// variants (a crate sold as 12 or 24). The zero value has no sizes.
type PackageSizes struct {
	sizes    []int64
	variants bool
}

// Single returns a one-size packaging.
func Single(n int64) PackageSizes {
	return PackageSizes{sizes: []int64{n}}
}

// Variants returns a multi-size packaging; the first size is the default.
func Variants(sizes ...int64) PackageSizes {
	cp := make([]int64, len(sizes))
	copy(cp, sizes)
	return PackageSizes{sizes: cp, variants: true}
}

// IsVariants reports whether the packaging lists several sizes.
func (p PackageSizes) IsVariants() bool { return p.variants }

// IsZero reports whether no size was set.
func (p PackageSizes) IsZero() bool { return len(p.sizes) == 0 }

// Default returns the size used when a delivery does not pick one.
func (p PackageSizes) Default() int64 {
	if len(p.sizes) == 0 {
		return 0
	}
	return p.sizes[0]
}

// Sizes returns a copy of the configured sizes.
func (p PackageSizes) Sizes() []int64 {
	cp := make([]int64, len(p.sizes))
	copy(cp, p.sizes)
	return cp
}

// Contains reports whether n is one of the configured sizes.
func (p PackageSizes) Contains(n int64) bool {
	for _, s := range p.sizes {
		if s == n {
			return true
		}
	}
	return false
}

// Validate ensures every size is positive.
func (p PackageSizes) Validate() error {
	if len(p.sizes) == 0 {
		return fmt.Errorf("%w: catalog: package size required", shared.ErrValidation)
	}
	for _, s := range p.sizes {
		if s <= 0 {
			return fmt.Errorf("%w: catalog: package size must be positive, got %d", shared.ErrValidation, s)
		}
	}
	return nil
}

// MarshalJSON renders a single size as a number and variants as an array.
func (p PackageSizes) MarshalJSON() ([]byte, error) {
	if !p.variants && len(p.sizes) == 1 {
		return json.Marshal(p.sizes[0])
	}
	if p.sizes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.sizes)
}

// UnmarshalJSON accepts either a number or an array of numbers.
func (p *PackageSizes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = PackageSizes{}
		return nil
	}
	if data[0] == '[' {
		var sizes []int64
		if err := json.Unmarshal(data, &sizes); err != nil {
			return err
		}
		*p = Variants(sizes...)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Single(n)
	return nil
}

var (
	// ErrEntryNotFound occurs when the product id is unknown.
	ErrEntryNotFound = fmt.Errorf("catalog: entry %w", shared.ErrNotFound)
	// ErrInvalidQuantity occurs when a negative quantity is valuated.
	ErrInvalidQuantity = fmt.Errorf("%w: catalog: quantity must be >= 0", shared.ErrValidation)
	// ErrMissingPricingParameters occurs when special pricing lacks group size or price.
	ErrMissingPricingParameters = fmt.Errorf("%w: catalog: special pricing requires group size and group price", shared.ErrValidation)
	// ErrInvalidPackageSize occurs when a delivery uses a size the entry does not list.
	ErrInvalidPackageSize = fmt.Errorf("%w: catalog: package size not offered by product", shared.ErrValidation)
)

// normalize fills defaults and trims the entry in place.
func (e *Entry) normalize() {
	e.Name = strings.TrimSpace(e.Name)
	if e.Kind == "" {
		e.Kind = KindPackage
	}
	if e.Pricing.Mode == "" {
		e.Pricing.Mode = PricingFlat
	}
	if e.PackageSizes.IsZero() {
		e.PackageSizes = Single(1)
	}
}

// Validate checks the entry against the catalog rules.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: catalog: name required", shared.ErrValidation)
	}
	if e.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: catalog: unit price must be >= 0", shared.ErrValidation)
	}
	if err := e.PackageSizes.Validate(); err != nil {
		return err
	}
	switch e.Kind {
	case KindPackage, KindUnit:
	default:
		return fmt.Errorf("%w: catalog: unknown kind %q", shared.ErrValidation, e.Kind)
	}
	switch e.Pricing.Mode {
	case PricingFlat:
	case PricingSpecial:
		if e.Pricing.GroupSize <= 0 {
			return fmt.Errorf("%w: catalog: special pricing requires group size > 0", shared.ErrValidation)
		}
		if !e.Pricing.GroupPrice.Valid || e.Pricing.GroupPrice.Decimal.IsNegative() {
			return fmt.Errorf("%w: catalog: special pricing requires group price >= 0", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: catalog: unknown pricing mode %q", shared.ErrValidation, e.Pricing.Mode)
	}
	return nil
}

// IsNotFound reports whether err means a missing catalog entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
