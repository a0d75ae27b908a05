package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ExportRows formats a snapshot into CSV-ready rows: the stock and delivery
// lines followed by the reconciliation chain.
func ExportRows(s Snapshot) [][]string {
	out := make([][]string, 0, len(s.Stock)+len(s.Deliveries)+12)
	out = append(out, []string{"Section", "Product ID", "Product", "Quantity", "Package size", "Value", "Issue"})
	for _, l := range s.Stock {
		out = append(out, []string{"stock", strconv.FormatInt(l.ProductID, 10), l.Name, strconv.FormatInt(l.Quantity, 10), "", money(l.Value), issueText(l.Issue)})
	}
	for _, l := range s.Deliveries {
		out = append(out, []string{"delivery", strconv.FormatInt(l.ProductID, 10), l.Name, strconv.FormatInt(l.Quantity, 10), strconv.FormatInt(l.PackageSize, 10), money(l.Value), issueText(l.Issue)})
	}
	totals := []struct {
		label string
		value decimal.Decimal
	}{
		{"Opening stock", s.OpeningStockValue},
		{"Deliveries", s.DeliveriesTotal},
		{"Gross stock", s.GrossStockValue},
		{"Closing stock", s.ClosingStockValue},
		{"Theoretical sales", s.TheoreticalSales},
		{"Cash collected", s.CashCollected},
		{"Variance", s.Variance},
		{"Expenses", s.ExpensesTotal},
		{"Net variance", s.NetVariance},
		{"Manager cash", s.ManagerCashOnHand},
		{"Final result", s.FinalResult},
	}
	for _, t := range totals {
		out = append(out, []string{"total", "", t.label, "", "", money(t.value), ""})
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func issueText(i *LineIssue) string {
	if i == nil {
		return ""
	}
	return string(i.Code)
}
