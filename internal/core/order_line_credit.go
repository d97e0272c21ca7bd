package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditResult is returned by ApplyOrderLineCredit.
type CreditResult struct {
	OrderLine          *OrderLine
	Credit             *OrderLineCredit
	DeliveriesRepriced int
	Payables           []Payable
	Warnings           []string
	// SideEffectErr is set when payables of repriced deliveries could not all be reconciled.
	SideEffectErr *SideEffectError
}

// ApplyOrderLineCredit lowers the unit price of an order line by spreading a supplier credit
// over its ordered quantity. Credits accumulate against the line's original price and can
// never exceed the original line total.
func (s *receivingService) ApplyOrderLineCredit(ctx context.Context, actor Actor, lineID uuid.UUID, amount decimal.Decimal, notes string) (*CreditResult, error) {
	if !s.cfg.Policy.Allows(actor.Role, PermApplyCredit) {
		return nil, fmt.Errorf("role %s may not apply order line credits: %w", actor.Role, ErrForbidden)
	}
	if !amount.IsPositive() {
		return nil, invalid("credit_amount", "must be greater than zero")
	}

	var (
		res      *CreditResult
		repriced []uuid.UUID
	)
	err := s.inTxWithRetry(ctx, func(tx Tx) error {
		res, repriced = nil, nil

		line, err := tx.LockOrderLine(ctx, lineID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("order_item_id", "order line %s not found", lineID)
			}
			return fmt.Errorf("lock order line %s: %w", lineID, err)
		}
		if !line.QtyOrdered.IsPositive() {
			return invalid("qty_ordered", "order line %s has no ordered quantity to credit", lineID)
		}

		originalPrice := line.UnitPrice
		if line.OriginalUnitPrice != nil {
			originalPrice = *line.OriginalUnitPrice
		}
		originalTotal := line.QtyOrdered.Mul(originalPrice)
		cumulative := line.CreditAmount.Add(amount)
		if cumulative.GreaterThan(originalTotal) {
			return invalid("credit_amount", "cumulative credit %s exceeds order line total %s",
				cumulative.StringFixed(2), originalTotal.StringFixed(2))
		}
		newPrice := originalTotal.Sub(cumulative).Div(line.QtyOrdered)

		credit := &OrderLineCredit{
			ID:                    s.newID(),
			OrderLineID:           line.ID,
			AppliedAmount:         amount,
			CumulativeAmountAfter: cumulative,
			UnitPriceBefore:       line.UnitPrice,
			UnitPriceAfter:        newPrice,
			AppliedBy:             actor.UserID,
			AppliedAt:             s.now(),
		}
		if n := strings.TrimSpace(notes); n != "" {
			credit.Notes = &n
		}

		line.OriginalUnitPrice = decPtr(originalPrice)
		line.UnitPrice = newPrice
		line.CreditAmount = cumulative
		line.UpdatedAt = credit.AppliedAt
		if err := tx.SaveOrderLinePrice(ctx, line); err != nil {
			return fmt.Errorf("save order line price: %w", err)
		}
		if err := tx.InsertOrderLineCredit(ctx, credit); err != nil {
			return fmt.Errorf("insert order line credit: %w", err)
		}

		deliveries, err := tx.ListDeliveriesByOrderLine(ctx, line.ID)
		if err != nil {
			return fmt.Errorf("list deliveries of order line: %w", err)
		}
		for i := range deliveries {
			d := &deliveries[i]
			d.UnitPrice = decPtr(newPrice)
			d.TotalCost = decPtr(d.NativeQty.Mul(newPrice))
			d.UpdatedAt = credit.AppliedAt
			if err := tx.SaveDelivery(ctx, d); err != nil {
				return fmt.Errorf("reprice delivery %s: %w", d.ID, err)
			}
			repriced = append(repriced, d.ID)
		}

		res = &CreditResult{OrderLine: line, Credit: credit, DeliveriesRepriced: len(repriced)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_item_id", lineID.String()).Str("amount", amount.String()).
		Str("unit_price", res.OrderLine.UnitPrice.String()).Int("deliveries", len(repriced)).
		Msg("order line credit applied")

	var failed []error
	for _, id := range repriced {
		rec, err := s.ReconcilePayables(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("delivery_id", id.String()).Msg("payable reconciliation failed after credit")
			failed = append(failed, fmt.Errorf("delivery %s: %w", id, err))
			continue
		}
		res.Payables = append(res.Payables, rec.Payables...)
		res.Warnings = append(res.Warnings, s.threeWayMatch(ctx, rec.Lines)...)
	}
	if len(failed) > 0 {
		res.SideEffectErr = &SideEffectError{Stage: "payable reconciliation", Err: errors.Join(failed...)}
	}
	return res, nil
}
