package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Progress is the increment a delivery contributes to its order line in one pass.
type Progress struct {
	DeltaNative decimal.Decimal
	DeltaKg     decimal.Decimal
}

// IsZero reports whether applying p would leave the line untouched.
func (p Progress) IsZero() bool {
	return p.DeltaNative.IsZero() && p.DeltaKg.IsZero()
}

// ComputeProgress derives the native and kg deltas for a delivery against its order line.
// prevNative/prevKg are what this delivery had already attributed to the same line (zero when
// newly linked). Decreases never produce negative deltas: a corrected-down quantity leaves
// the line's cumulative counters where they are.
func ComputeProgress(prevNative, newNative decimal.Decimal, prevKg, newKg *decimal.Decimal) Progress {
	p := Progress{DeltaNative: nonNegative(newNative.Sub(prevNative))}
	if newKg != nil {
		prev := decimal.Zero
		if prevKg != nil {
			prev = *prevKg
		}
		p.DeltaKg = nonNegative(newKg.Sub(prev))
	}
	return p
}

// CheckBalance fails with ErrPoBalanceExceeded when delta does not fit in the line's open
// quantity. The line's own counters are the source of truth.
func CheckBalance(line *OrderLine, delta decimal.Decimal, tolerance decimal.Decimal) error {
	remaining := line.Remaining()
	if delta.GreaterThan(remaining.Add(tolerance)) {
		return fmt.Errorf("order line %s: receiving %s would exceed open balance %s (ordered %s, received %s): %w",
			line.ID, delta, remaining, line.QtyOrdered, line.QtyReceivedNative, ErrPoBalanceExceeded)
	}
	return nil
}

// OrderLineStatusFor is the pure status function of an order line.
func OrderLineStatusFor(received, ordered, tolerance decimal.Decimal) OrderLineStatus {
	switch {
	case !received.IsPositive():
		return OrderLinePending
	case received.GreaterThanOrEqual(ordered.Sub(tolerance)):
		return OrderLineFulfilled
	default:
		return OrderLinePartial
	}
}

// ApplyProgress advances line in place. Stores without a native conditional update use it
// while holding the row exclusively; it re-checks the balance against the line as given.
func ApplyProgress(line *OrderLine, p Progress, tolerance decimal.Decimal) error {
	if err := CheckBalance(line, p.DeltaNative, tolerance); err != nil {
		return err
	}
	line.QtyReceivedNative = line.QtyReceivedNative.Add(p.DeltaNative)
	line.QtyReceivedKg = line.QtyReceivedKg.Add(p.DeltaKg)
	line.Status = OrderLineStatusFor(line.QtyReceivedNative, line.QtyOrdered, tolerance)
	return nil
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
