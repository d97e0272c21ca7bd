package core

import "github.com/shopspring/decimal"

// PriceDecision is the outcome of the price lock, computed before any mutation.
type PriceDecision struct {
	UnitPrice *decimal.Decimal
	// Overridden is set when an authorized actor replaced the order line price.
	Overridden bool
	// OverrideIgnored is set when a different price was requested without permission.
	OverrideIgnored bool
	// Replaced holds the previously recorded price when the lock put the line price back in
	// its place without a new price being requested.
	Replaced *decimal.Decimal
}

// DecidePrice applies the price lock. A delivery linked to a non-service order line records
// the line's price unless the actor may override prices and requested a different one.
// A correction that restates no price records the line's price again, reporting the replaced
// one. Unlinked deliveries and service lines keep the requested price, else the current one.
func DecidePrice(p Policy, a Actor, line *OrderLine, requested, current *decimal.Decimal) PriceDecision {
	if line == nil || line.IsService {
		if requested != nil {
			return PriceDecision{UnitPrice: decPtr(*requested)}
		}
		return PriceDecision{UnitPrice: current}
	}

	locked := line.UnitPrice
	if requested == nil {
		d := PriceDecision{UnitPrice: decPtr(locked)}
		if current != nil && !current.Equal(locked) {
			d.Replaced = decPtr(*current)
		}
		return d
	}
	if requested.Equal(locked) {
		return PriceDecision{UnitPrice: decPtr(locked)}
	}
	if p.Allows(a.Role, PermOverridePrice) {
		return PriceDecision{UnitPrice: decPtr(*requested), Overridden: true}
	}
	return PriceDecision{UnitPrice: decPtr(locked), OverrideIgnored: true}
}

// LineCost returns the total cost of a delivery. An explicit total wins; otherwise the cost is
// priced in native units. Without a unit price there is no cost.
func LineCost(unitPrice *decimal.Decimal, nativeQty decimal.Decimal, explicit *decimal.Decimal) *decimal.Decimal {
	if explicit != nil {
		return decPtr(*explicit)
	}
	if unitPrice == nil {
		return nil
	}
	return decPtr(unitPrice.Mul(nativeQty))
}
