package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WeightCandidates are the volumetric weights (kg per m3) that may convert an m3 receipt,
// listed in precedence order. Nil or non-positive values are treated as absent.
type WeightCandidates struct {
	OrderLine       *decimal.Decimal
	Agreement       *decimal.Decimal
	MaterialDefault *decimal.Decimal
	Manual          *decimal.Decimal
}

// Measurement is the canonical mass view of a native quantity.
type Measurement struct {
	KgEquivalent *decimal.Decimal
	WeightUsed   *decimal.Decimal
	WeightSource WeightSource
}

// ResolveMeasurement converts a native quantity into its kg equivalent.
//
//	kg → the quantity itself
//	l  → never converted, KgEquivalent is nil
//	m3 → qty × first present weight: order line, agreement, material default, manual
//
// An m3 receipt with no usable weight fails with ErrMissingConversionFactor; no default
// density is ever assumed.
func ResolveMeasurement(uom UoM, qty decimal.Decimal, w WeightCandidates) (Measurement, error) {
	if qty.IsNegative() {
		return Measurement{}, invalid("native_qty", "must not be negative, got %s", qty)
	}

	switch uom {
	case UoMKilogram:
		return Measurement{KgEquivalent: decPtr(qty)}, nil
	case UoMLiter:
		return Measurement{}, nil
	case UoMCubicMeter:
		weight, source := w.first()
		if weight == nil {
			return Measurement{}, fmt.Errorf("m3 receipt of %s has no volumetric weight: %w", qty, ErrMissingConversionFactor)
		}
		return Measurement{
			KgEquivalent: decPtr(qty.Mul(*weight)),
			WeightUsed:   decPtr(*weight),
			WeightSource: source,
		}, nil
	default:
		return Measurement{}, invalid("native_uom", "unsupported unit %q", uom)
	}
}

func (w WeightCandidates) first() (*decimal.Decimal, WeightSource) {
	ordered := []struct {
		value  *decimal.Decimal
		source WeightSource
	}{
		{w.OrderLine, WeightSourceOrderLine},
		{w.Agreement, WeightSourceAgreement},
		{w.MaterialDefault, WeightSourceMaterialDefault},
		{w.Manual, WeightSourceManual},
	}
	for _, c := range ordered {
		if usableWeight(c.value) {
			return c.value, c.source
		}
	}
	return nil, WeightSourceNone
}

func usableWeight(w *decimal.Decimal) bool {
	return w != nil && w.IsPositive()
}
