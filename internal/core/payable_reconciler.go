package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ── Phase 2: payable reconciliation ──────────────────────────────────────────

// costCandidate is one billable cost of a delivery: the material itself or its freight.
type costCandidate struct {
	category   CostCategory
	supplierID *uuid.UUID
	invoice    *string
	amount     *decimal.Decimal
	dueDate    *time.Time
}

func (c costCandidate) billable() bool {
	return c.supplierID != nil &&
		c.invoice != nil && strings.TrimSpace(*c.invoice) != "" &&
		c.amount != nil && c.amount.IsPositive()
}

func costCandidates(d *Delivery) []costCandidate {
	return []costCandidate{
		{CostMaterial, d.SupplierID, d.InvoiceNumber, d.TotalCost, d.DueDate},
		{CostFreight, d.FleetSupplierID, d.FleetInvoice, d.FleetCost, d.FleetDueDate},
	}
}

func (s *receivingService) ReconcilePayables(ctx context.Context, deliveryID uuid.UUID) (*ReconcileResult, error) {
	var res *ReconcileResult
	err := s.inTxWithRetry(ctx, func(tx Tx) error {
		res = nil
		r, err := s.reconcilePayables(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *receivingService) reconcilePayables(ctx context.Context, tx Tx, deliveryID uuid.UUID) (*ReconcileResult, error) {
	d, err := tx.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("load delivery %s: %w", deliveryID, err)
	}

	res := &ReconcileResult{}
	var touched []uuid.UUID
	seen := map[uuid.UUID]bool{}
	touch := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			touched = append(touched, id)
		}
	}

	var (
		unitDefault *decimal.Decimal
		currency    string
		headerReady bool
	)
	for _, c := range costCandidates(d) {
		if !c.billable() {
			// A cost withdrawn by a correction takes its existing line with it.
			removedFrom, err := tx.DeletePayableLine(ctx, d.ID, c.category)
			if err != nil {
				return nil, fmt.Errorf("remove %s payable line: %w", c.category, err)
			}
			if removedFrom != nil {
				touch(*removedFrom)
				s.log.Info().Str("delivery_id", d.ID.String()).Str("category", string(c.category)).
					Str("payable_id", removedFrom.String()).Msg("cost no longer billable, payable line removed")
				continue
			}
			s.log.Debug().Str("delivery_id", d.ID.String()).Str("category", string(c.category)).
				Msg("cost not billable yet, skipping payable line")
			continue
		}
		if !headerReady {
			unitDefault, currency, err = s.headerDefaults(ctx, tx, d)
			if err != nil {
				return nil, err
			}
			headerReady = true
		}

		agreement, err := tx.ActiveAgreement(ctx, *c.supplierID, d.MaterialID)
		if err != nil {
			return nil, fmt.Errorf("load supplier agreement: %w", err)
		}
		rate, source := ResolveTaxRate(agreement, unitDefault, s.cfg.FallbackTaxRate)

		due, err := s.dueDate(ctx, tx, c, d.EntryTime)
		if err != nil {
			return nil, err
		}

		key := PayableKey{SupplierID: *c.supplierID, PlantID: d.PlantID, InvoiceNumber: strings.TrimSpace(*c.invoice)}
		payable, err := tx.UpsertPayable(ctx, key, PayableHeader{TaxRate: rate, Currency: currency, DueDate: due})
		if err != nil {
			return nil, fmt.Errorf("upsert payable %s: %w", key.InvoiceNumber, err)
		}

		line := PayableLine{
			PayableID:  payable.ID,
			DeliveryID: d.ID,
			Category:   c.category,
			Amount:     *c.amount,
			NativeUoM:  d.NativeUoM,
			NativeQty:  d.NativeQty,
			WeightUsed: d.VolumetricWeightUsed,
		}
		if c.category == CostMaterial {
			line.OrderItemID = d.OrderItemID
		}
		saved, previous, err := tx.UpsertPayableLine(ctx, line)
		if err != nil {
			return nil, fmt.Errorf("upsert %s payable line: %w", c.category, err)
		}
		res.Lines = append(res.Lines, *saved)
		touch(payable.ID)
		if previous != nil {
			touch(*previous)
		}

		s.log.Debug().Str("delivery_id", d.ID.String()).Str("category", string(c.category)).
			Str("invoice", key.InvoiceNumber).Str("tax_rate", rate.String()).Str("tax_source", string(source)).
			Msg("payable line upserted")
	}

	for _, id := range touched {
		p, err := s.refreshTotals(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		res.Payables = append(res.Payables, *p)
	}
	return res, nil
}

// headerDefaults resolves the business unit tax default and currency for a delivery's payables.
func (s *receivingService) headerDefaults(ctx context.Context, tx Tx, d *Delivery) (*decimal.Decimal, string, error) {
	plant, err := tx.GetPlant(ctx, d.PlantID)
	if err != nil {
		return nil, "", fmt.Errorf("load plant %s: %w", d.PlantID, err)
	}
	var unitDefault *decimal.Decimal
	if plant.BusinessUnitID != nil {
		bu, err := tx.GetBusinessUnit(ctx, *plant.BusinessUnitID)
		switch {
		case err == nil:
			unitDefault = bu.DefaultTaxRate
		case errors.Is(err, ErrNotFound):
		default:
			return nil, "", fmt.Errorf("load business unit %s: %w", *plant.BusinessUnitID, err)
		}
	}

	currency := s.cfg.DefaultCurrency
	if d.OrderID != nil {
		order, err := tx.GetOrder(ctx, *d.OrderID)
		if err != nil {
			return nil, "", fmt.Errorf("load purchase order %s: %w", *d.OrderID, err)
		}
		if order.Currency != "" {
			currency = order.Currency
		}
	}
	return unitDefault, currency, nil
}

// dueDate is the explicit due date, else entry date plus the supplier's payment terms.
func (s *receivingService) dueDate(ctx context.Context, tx Tx, c costCandidate, entry time.Time) (*time.Time, error) {
	if c.dueDate != nil {
		return c.dueDate, nil
	}
	sup, err := tx.GetSupplier(ctx, *c.supplierID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load supplier %s: %w", *c.supplierID, err)
	}
	if sup.PaymentTermsDays == nil {
		return nil, nil
	}
	y, m, day := entry.Date()
	due := time.Date(y, m, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, *sup.PaymentTermsDays)
	return &due, nil
}

// refreshTotals recomputes subtotal, tax and total of a payable from its current lines. A
// header left without lines is voided; a void header that receives a line again reopens.
func (s *receivingService) refreshTotals(ctx context.Context, tx Tx, payableID uuid.UUID) (*Payable, error) {
	p, err := tx.GetPayable(ctx, payableID)
	if err != nil {
		return nil, fmt.Errorf("load payable %s: %w", payableID, err)
	}
	lines, err := tx.ListPayableLines(ctx, payableID)
	if err != nil {
		return nil, fmt.Errorf("list payable lines: %w", err)
	}
	p.Subtotal, p.Tax, p.Total = PayableTotals(p.TaxRate, lines)
	switch {
	case len(lines) == 0:
		p.Status = PayableVoid
	case p.Status == PayableVoid:
		p.Status = PayableOpen
	}
	if err := tx.SetPayableTotals(ctx, p.ID, p.Status, p.Subtotal, p.Tax, p.Total); err != nil {
		return nil, fmt.Errorf("set payable totals: %w", err)
	}
	return p, nil
}

// ── Phase 3: three-way match ─────────────────────────────────────────────────

// threeWayMatch compares each payable touched this pass. Comparator failures are logged and
// never surface to the caller.
func (s *receivingService) threeWayMatch(ctx context.Context, lines []PayableLine) []string {
	if s.matcher == nil {
		return nil
	}
	var warnings []string
	seen := map[uuid.UUID]bool{}
	for _, l := range lines {
		if seen[l.PayableID] {
			continue
		}
		seen[l.PayableID] = true
		mismatches, err := s.matcher.Compare(ctx, l.PayableID)
		if err != nil {
			s.log.Warn().Err(err).Str("payable_id", l.PayableID.String()).Msg("three-way match comparison failed")
			continue
		}
		for _, m := range mismatches {
			warnings = append(warnings, RenderMismatch(m))
		}
	}
	return warnings
}
