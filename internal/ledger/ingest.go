package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/shared"
)

// ExternalQuantity is a (product name, quantity) pair produced outside the
// ledger, for instance by reading a photographed stock sheet.
type ExternalQuantity struct {
	Name     string `json:"name" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
}

// IngestDefaults is the pricing given to products created during ingestion.
type IngestDefaults struct {
	UnitPrice   decimal.Decimal
	PackageSize int64
}

// DefaultEntry returns the catalog candidate created for an unknown name.
func (d IngestDefaults) DefaultEntry(name string) catalog.Entry {
	return catalog.Entry{
		Name:         strings.TrimSpace(name),
		UnitPrice:    d.UnitPrice,
		PackageSizes: catalog.Single(d.PackageSize),
		Kind:         catalog.KindPackage,
		Pricing:      catalog.Pricing{Mode: catalog.PricingFlat},
	}
}

// IngestDecision exposes how one result was matched.
type IngestDecision struct {
	Name      string            `json:"name"`
	Quantity  int64             `json:"quantity"`
	ProductID int64             `json:"product_id"`
	Matched   string            `json:"matched"`
	Kind      catalog.MatchKind `json:"kind"`
	Created   bool              `json:"created"`
}

// IngestResult summarises an ingestion batch.
type IngestResult struct {
	Updated   int              `json:"updated"`
	Created   int              `json:"created"`
	Decisions []IngestDecision `json:"decisions"`
	// NewEntries lists the catalog entries inserted by the batch, in order.
	NewEntries []catalog.Entry `json:"new_entries"`
}

// IngestExternalQuantities reconciles named quantities against the catalog.
//
// Phase one inserts a default-priced catalog entry for every name that does
// not fuzzy-match an existing product; a later name in the batch may match
// a product inserted earlier in the same phase. Phase two applies every
// quantity as a stock count to its matched product. Updated counts results
// that landed on products that existed before the batch, Created counts the
// inserted entries. The batch is validated before anything changes.
func (e *Engine) IngestExternalQuantities(results []ExternalQuantity, defaults IngestDefaults) (IngestResult, error) {
	if len(results) == 0 {
		return IngestResult{}, ErrEmptyBatch
	}
	for i, r := range results {
		if strings.TrimSpace(r.Name) == "" {
			return IngestResult{}, fmt.Errorf("%w: ledger: result %d has no name", shared.ErrValidation, i)
		}
		if r.Quantity < 0 {
			return IngestResult{}, fmt.Errorf("%w: result %d", ErrInvalidQuantity, i)
		}
	}
	if err := defaults.DefaultEntry("probe").Validate(); err != nil {
		return IngestResult{}, fmt.Errorf("ledger: ingestion defaults: %w", err)
	}

	res := IngestResult{}
	created := make(map[int64]bool)
	for _, r := range results {
		if _, ok := e.catalog.FindByFuzzyName(r.Name); ok {
			continue
		}
		entry, err := e.catalog.Add(defaults.DefaultEntry(r.Name))
		if err != nil {
			// defaults were validated above, so only the name can be at fault
			return IngestResult{}, err
		}
		created[entry.ID] = true
		res.NewEntries = append(res.NewEntries, entry)
		res.Created++
	}

	for _, r := range results {
		m, ok := e.catalog.FindByFuzzyName(r.Name)
		if !ok {
			return IngestResult{}, fmt.Errorf("%w: %q after insertion", ErrProductNotFound, r.Name)
		}
		e.stock[m.Entry.ID] = r.Quantity
		res.Decisions = append(res.Decisions, IngestDecision{
			Name:      r.Name,
			Quantity:  r.Quantity,
			ProductID: m.Entry.ID,
			Matched:   m.Entry.Name,
			Kind:      m.Kind,
			Created:   created[m.Entry.ID],
		})
		if !created[m.Entry.ID] {
			res.Updated++
		}
	}
	e.touch()
	return res, nil
}
