package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchTolerance is the amount difference below which invoiced and expected agree.
var MatchTolerance = decimal.NewFromFloat(0.01)

// ExpectedAmount is what a payable line should amount to given the order line it was
// received against: ordered unit price × received native quantity. ok is false for lines that
// cannot be matched (freight, or no order linkage).
func ExpectedAmount(l PayableLine, orderLine *OrderLine) (expected decimal.Decimal, ok bool) {
	if l.Category != CostMaterial || orderLine == nil {
		return decimal.Zero, false
	}
	return orderLine.UnitPrice.Mul(l.NativeQty), true
}

// Disagrees reports whether amount and expected differ by more than MatchTolerance.
func Disagrees(amount, expected decimal.Decimal) bool {
	return amount.Sub(expected).Abs().GreaterThan(MatchTolerance)
}

// RenderMismatch formats a mismatch as a human-readable warning.
func RenderMismatch(m Mismatch) string {
	diff := m.Amount.Sub(m.Expected)
	pct := ""
	if !m.Expected.IsZero() {
		pct = fmt.Sprintf(" (%s%%)", diff.Div(m.Expected).Mul(decimal.NewFromInt(100)).StringFixed(1))
	}
	return fmt.Sprintf("three-way match: %s line of delivery %s invoiced %s, expected %s, difference %s%s",
		m.Category, m.DeliveryID, m.Amount.StringFixed(2), m.Expected.StringFixed(2), diff.StringFixed(2), pct)
}
