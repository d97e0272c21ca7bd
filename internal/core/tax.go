package core

import "github.com/shopspring/decimal"

// TaxSource names where a payable's tax rate came from.
type TaxSource string

const (
	TaxFromAgreement    TaxSource = "supplier_agreement"
	TaxFromBusinessUnit TaxSource = "business_unit"
	TaxFromFallback     TaxSource = "fallback"
)

// ResolveTaxRate picks the first present rate: agreement, business unit default, fallback.
func ResolveTaxRate(agreement *SupplierAgreement, unitDefault *decimal.Decimal, fallback decimal.Decimal) (decimal.Decimal, TaxSource) {
	if agreement.Active() && agreement.TaxRate != nil {
		return *agreement.TaxRate, TaxFromAgreement
	}
	if unitDefault != nil {
		return *unitDefault, TaxFromBusinessUnit
	}
	return fallback, TaxFromFallback
}

// PayableTotals recomputes header totals from its lines.
func PayableTotals(rate decimal.Decimal, lines []PayableLine) (subtotal, tax, total decimal.Decimal) {
	for _, l := range lines {
		subtotal = subtotal.Add(l.Amount)
	}
	tax = subtotal.Mul(rate).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}
