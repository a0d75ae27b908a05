package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/shared"
)

type fixedExpenses struct{ total decimal.Decimal }

func (f *fixedExpenses) Total() decimal.Decimal { return f.total }

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var workingDate = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func barCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Entry{
		{ID: 1, Name: "Castel", UnitPrice: dec("1000"), PackageSizes: catalog.Single(5), Kind: catalog.KindPackage, Pricing: catalog.Pricing{Mode: catalog.PricingFlat}},
		{ID: 2, Name: "Flag", UnitPrice: dec("1000"), PackageSizes: catalog.Variants(12, 24), Kind: catalog.KindPackage, Pricing: catalog.Pricing{Mode: catalog.PricingFlat}},
		{ID: 3, Name: "Whisky shot", UnitPrice: dec("250"), PackageSizes: catalog.Single(1), Kind: catalog.KindUnit, Pricing: catalog.Pricing{Mode: catalog.PricingFlat}},
	}, 0)
}

func TestReconciliationChain(t *testing.T) {
	expenses := &fixedExpenses{total: dec("500")}
	e := NewEngine(barCatalog(), expenses, workingDate, nil)

	e.SetOpeningStock(dec("10000"))
	require.NoError(t, e.SetDeliveryQuantity(1, 1, 0))
	require.NoError(t, e.SetStockQuantity(2, 8))
	e.SetCashCollected(dec("6000"))
	e.SetManagerCash(dec("1200"))

	s := e.Snapshot()
	assert.True(t, dec("5000").Equal(s.DeliveriesTotal), s.DeliveriesTotal.String())
	assert.True(t, dec("15000").Equal(s.GrossStockValue), s.GrossStockValue.String())
	assert.True(t, dec("8000").Equal(s.ClosingStockValue), s.ClosingStockValue.String())
	assert.True(t, dec("7000").Equal(s.TheoreticalSales), s.TheoreticalSales.String())
	assert.True(t, dec("1000").Equal(s.Variance), s.Variance.String())
	assert.True(t, dec("500").Equal(s.ExpensesTotal), s.ExpensesTotal.String())
	assert.True(t, dec("500").Equal(s.NetVariance), s.NetVariance.String())
	assert.True(t, dec("700").Equal(s.FinalResult), s.FinalResult.String())
	assert.Equal(t, int64(5), s.Deliveries[0].PackageSize)
	assert.Equal(t, DateOnly(workingDate), s.Date)
}

func TestTheoreticalSalesNotClamped(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(2, 3))

	s := e.Snapshot()
	assert.True(t, dec("-3000").Equal(s.TheoreticalSales), s.TheoreticalSales.String())
	assert.True(t, dec("-3000").Equal(s.Variance))
	assert.True(t, dec("3000").Equal(s.FinalResult))
}

func TestRecomputeAllIsIdempotent(t *testing.T) {
	e := NewEngine(barCatalog(), &fixedExpenses{total: dec("150")}, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(1, 4))
	require.NoError(t, e.SetDeliveryQuantity(2, 2, 24))
	e.SetCashCollected(dec("1234.50"))

	first := e.RecomputeAll()
	second := e.RecomputeAll()
	assert.Equal(t, first, second)
	assert.Equal(t, first, e.Snapshot())
}

func TestSettersRejectUnknownProduct(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	before := e.Snapshot()

	err := e.SetStockQuantity(99, 1)
	require.ErrorIs(t, err, ErrProductNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, e.SetDeliveryQuantity(99, 1, 0), ErrProductNotFound)

	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, StateEmpty, e.State())
}

func TestSettersRejectInvalidInput(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)

	require.ErrorIs(t, e.SetStockQuantity(1, -1), ErrInvalidQuantity)
	require.ErrorIs(t, e.SetDeliveryQuantity(1, -2, 0), ErrInvalidQuantity)
	require.ErrorIs(t, e.SetDeliveryQuantity(2, 1, 6), catalog.ErrInvalidPackageSize)
	assert.Equal(t, StateEmpty, e.State())
}

func TestDeliveryValuationByKind(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	require.NoError(t, e.SetDeliveryQuantity(2, 2, 24))
	require.NoError(t, e.SetDeliveryQuantity(3, 4, 12))

	s := e.Snapshot()
	require.Len(t, s.Deliveries, 2)
	assert.True(t, dec("48000").Equal(s.Deliveries[0].Value))
	// unit products ignore the package size
	assert.True(t, dec("1000").Equal(s.Deliveries[1].Value))
	assert.Equal(t, int64(0), s.Deliveries[1].PackageSize)
	assert.True(t, dec("49000").Equal(s.DeliveriesTotal))
}

func TestSpecialPricingWithoutParametersIsFlaggedInline(t *testing.T) {
	cat := catalog.New([]catalog.Entry{
		{ID: 1, Name: "Castel", UnitPrice: dec("1000"), PackageSizes: catalog.Single(5), Kind: catalog.KindPackage, Pricing: catalog.Pricing{Mode: catalog.PricingFlat}},
		{ID: 2, Name: "Cocktail", UnitPrice: dec("500"), PackageSizes: catalog.Single(1), Kind: catalog.KindPackage, Pricing: catalog.Pricing{Mode: catalog.PricingSpecial}},
	}, 0)
	e := NewEngine(cat, nil, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(1, 2))
	require.NoError(t, e.SetStockQuantity(2, 7))

	s := e.Snapshot()
	require.Len(t, s.Stock, 2)
	assert.Nil(t, s.Stock[0].Issue)
	require.NotNil(t, s.Stock[1].Issue)
	assert.Equal(t, IssueMissingPricingParameters, s.Stock[1].Issue.Code)
	assert.True(t, s.Stock[1].Value.IsZero())
	assert.True(t, dec("2000").Equal(s.ClosingStockValue))
}

func TestOrphanLinesExcludedFromTotals(t *testing.T) {
	cat := barCatalog()
	e := NewEngine(cat, nil, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(1, 2))
	require.NoError(t, e.SetStockQuantity(2, 3))
	require.NoError(t, e.SetDeliveryQuantity(2, 1, 12))

	require.NoError(t, cat.Remove(2))
	s := e.RecomputeAll()

	require.Len(t, s.Stock, 1)
	assert.Empty(t, s.Deliveries)
	assert.ElementsMatch(t, []OrphanLine{
		{ProductID: 2, Line: LineStock, Quantity: 3},
		{ProductID: 2, Line: LineDelivery, Quantity: 1},
	}, s.Orphans)
	assert.True(t, dec("2000").Equal(s.ClosingStockValue))
	assert.True(t, s.DeliveriesTotal.IsZero())
}

func TestStateTransitions(t *testing.T) {
	expenses := &fixedExpenses{total: decimal.Zero}
	e := NewEngine(barCatalog(), expenses, workingDate, nil)
	assert.Equal(t, StateEmpty, e.State())

	require.NoError(t, e.SetStockQuantity(1, 1))
	assert.Equal(t, StateInProgress, e.State())

	e.MarkSaved()
	assert.Equal(t, StateSaved, e.State())
	assert.Equal(t, StateSaved, e.Snapshot().State)

	expenses.total = dec("100")
	e.Invalidate()
	assert.Equal(t, StateInProgress, e.State())
	assert.True(t, dec("100").Equal(e.Snapshot().ExpensesTotal))
}

func TestLoadWorkingSet(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	e.Load(WorkingSet{
		Stock:      []StockLine{{ProductID: 1, Quantity: 2}},
		Deliveries: []DeliveryLine{{ProductID: 2, Quantity: 1, PackageSize: 24}},
		Cash:       CashFigures{OpeningStockValue: dec("100"), CashCollected: dec("50"), ManagerCashOnHand: decimal.Zero},
		Saved:      true,
	})

	assert.Equal(t, StateSaved, e.State())
	s := e.Snapshot()
	assert.True(t, dec("2000").Equal(s.ClosingStockValue))
	assert.True(t, dec("24000").Equal(s.DeliveriesTotal))
	assert.True(t, dec("100").Equal(s.OpeningStockValue))

	e.Load(WorkingSet{})
	assert.Equal(t, StateEmpty, e.State())
}

func TestCheckpointRestore(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(1, 2))
	cp := e.Checkpoint()
	before := e.Snapshot()

	require.NoError(t, e.SetStockQuantity(1, 9))
	e.SetCashCollected(dec("10"))
	e.Restore(cp)

	assert.Equal(t, before, e.Snapshot())
}

func TestExportRows(t *testing.T) {
	e := NewEngine(barCatalog(), nil, workingDate, nil)
	require.NoError(t, e.SetStockQuantity(1, 2))
	require.NoError(t, e.SetDeliveryQuantity(3, 4, 0))

	rows := ExportRows(e.Snapshot())
	require.Len(t, rows, 1+2+11)
	assert.Equal(t, "Section", rows[0][0])
	assert.Equal(t, []string{"stock", "1", "Castel", "2", "", "2000.00", ""}, rows[1])
	assert.Equal(t, []string{"delivery", "3", "Whisky shot", "4", "0", "1000.00", ""}, rows[2])
	assert.Equal(t, []string{"total", "", "Final result", "", "", "1000.00", ""}, rows[len(rows)-1])
}
