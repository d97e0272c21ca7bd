package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReceiptResult is returned by every successful create or update of a delivery.
type ReceiptResult struct {
	Delivery     *Delivery
	OrderLine    *OrderLine // nil when the delivery is not linked to an order line
	Payables     []Payable
	PayableLines []PayableLine
	// Warnings are advisory: ignored overrides and three-way-match mismatches.
	Warnings []string
	// SideEffectErr is set when payable reconciliation failed after the delivery committed.
	// The delivery stands; ReconcilePayables can be run again for it.
	SideEffectErr *SideEffectError
}

// ReconcileResult is the outcome of one payable reconciliation pass for a delivery.
type ReconcileResult struct {
	Payables []Payable     // every payable whose totals were refreshed
	Lines    []PayableLine // lines written this pass
}

// ServiceConfig carries the receiving engine's tunables.
type ServiceConfig struct {
	Policy          Policy
	FallbackTaxRate decimal.Decimal
	DefaultCurrency string
	Tolerance       decimal.Decimal
}

// DefaultServiceConfig returns the plant defaults: 16% fallback tax, MXN, 1e-6 tolerance.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Policy:          DefaultPolicy(),
		FallbackTaxRate: decimal.NewFromFloat(0.16),
		DefaultCurrency: "MXN",
		Tolerance:       QtyTolerance,
	}
}

// ReceivingService reconciles material deliveries with purchase orders and payables.
type ReceivingService interface {
	// CreateDelivery records a new delivery, links it to an order line when requested, seeds
	// its FIFO remaining quantity and synchronizes its payables.
	CreateDelivery(ctx context.Context, actor Actor, in NewDelivery) (*ReceiptResult, error)

	// UpdateDelivery applies a correction to a delivery and re-runs the whole pipeline.
	// Validation, conversion and balance failures reject the update with zero writes.
	UpdateDelivery(ctx context.Context, actor Actor, deliveryID uuid.UUID, upd DeliveryUpdate) (*ReceiptResult, error)

	// ReconcilePayables upserts the material and freight payable lines of a delivery. It is
	// idempotent and can be re-run at any time without touching the receipt itself.
	ReconcilePayables(ctx context.Context, deliveryID uuid.UUID) (*ReconcileResult, error)

	// ApplyOrderLineCredit lowers an order line's unit price by a credit and reprices every
	// delivery received against it.
	ApplyOrderLineCredit(ctx context.Context, actor Actor, lineID uuid.UUID, amount decimal.Decimal, notes string) (*CreditResult, error)

	// GetDelivery returns a delivery by id.
	GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)
}

type receivingService struct {
	store   Store
	matcher MatchComparator
	cfg     ServiceConfig
	log     zerolog.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewReceivingService constructs a ReceivingService. matcher may be nil, which disables the
// three-way-match warnings.
func NewReceivingService(store Store, matcher MatchComparator, cfg ServiceConfig, log zerolog.Logger) ReceivingService {
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = QtyTolerance
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "MXN"
	}
	return &receivingService{
		store:   store,
		matcher: matcher,
		cfg:     cfg,
		log:     log.With().Str("component", "receiving").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
}

// ── Phase 1: delivery + order line ───────────────────────────────────────────

func (s *receivingService) CreateDelivery(ctx context.Context, actor Actor, in NewDelivery) (*ReceiptResult, error) {
	if in.PlantID == uuid.Nil {
		return nil, invalid("plant_id", "is required")
	}
	if in.MaterialID == uuid.Nil {
		return nil, invalid("material_id", "is required")
	}
	if in.NativeUoM == nil {
		return nil, invalid("native_uom", "is required")
	}
	if in.NativeQty == nil {
		return nil, invalid("native_qty", "is required")
	}

	entryTime := in.EntryTime
	if entryTime.IsZero() {
		entryTime = s.now()
	}
	id := s.newID()

	load := func(ctx context.Context, tx Tx) (*Delivery, bool, error) {
		now := s.now()
		return &Delivery{
			ID:            id,
			PlantID:       in.PlantID,
			MaterialID:    in.MaterialID,
			EntryTime:     entryTime,
			NativeUoM:     *in.NativeUoM,
			PricingStatus: PricingDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}, true, nil
	}
	return s.receive(ctx, actor, load, in.DeliveryUpdate)
}

func (s *receivingService) UpdateDelivery(ctx context.Context, actor Actor, deliveryID uuid.UUID, upd DeliveryUpdate) (*ReceiptResult, error) {
	load := func(ctx context.Context, tx Tx) (*Delivery, bool, error) {
		d, err := tx.LockDelivery(ctx, deliveryID)
		return d, false, err
	}
	return s.receive(ctx, actor, load, upd)
}

type loadFunc func(ctx context.Context, tx Tx) (prior *Delivery, isNew bool, err error)

// receive runs phase 1 in one transaction, then the best-effort payable pass.
func (s *receivingService) receive(ctx context.Context, actor Actor, load loadFunc, upd DeliveryUpdate) (*ReceiptResult, error) {
	var res *ReceiptResult
	err := s.inTxWithRetry(ctx, func(tx Tx) error {
		res = nil
		prior, isNew, err := load(ctx, tx)
		if err != nil {
			return err
		}
		r, err := s.applyUpdate(ctx, tx, actor, prior, isNew, upd)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		s.log.Info().Err(err).Str("actor", actor.UserID.String()).Msg("delivery update rejected")
		return nil, err
	}

	ev := s.log.Info().Str("delivery_id", res.Delivery.ID.String()).Str("native_qty", res.Delivery.NativeQty.String())
	if res.OrderLine != nil {
		ev = ev.Str("order_item_id", res.OrderLine.ID.String()).
			Str("qty_received_native", res.OrderLine.QtyReceivedNative.String()).
			Str("status", string(res.OrderLine.Status))
	}
	ev.Msg("delivery committed")

	s.followUp(ctx, res)
	return res, nil
}

// applyUpdate is the reconciliation pipeline for one delivery inside the phase-1 transaction.
func (s *receivingService) applyUpdate(ctx context.Context, tx Tx, actor Actor, prior *Delivery, isNew bool, upd DeliveryUpdate) (*ReceiptResult, error) {
	if !s.cfg.Policy.CanActAtPlant(actor, prior.PlantID) {
		return nil, fmt.Errorf("role %s is not assigned to plant %s: %w", actor.Role, prior.PlantID, ErrForbidden)
	}

	next := prior.clone()
	if err := mergeFields(next, upd); err != nil {
		return nil, err
	}
	res := &ReceiptResult{}

	// Order linkage
	var line *OrderLine
	lineID := next.OrderItemID
	if upd.OrderItemID != nil {
		lineID = upd.OrderItemID
	}
	if lineID != nil {
		l, err := tx.GetOrderLine(ctx, *lineID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, invalid("order_item_id", "order line %s not found", *lineID)
			}
			return nil, fmt.Errorf("load order line %s: %w", *lineID, err)
		}
		order, err := tx.GetOrder(ctx, l.OrderID)
		if err != nil {
			return nil, fmt.Errorf("load purchase order %s: %w", l.OrderID, err)
		}
		supplierID, err := ValidateLinkage(next, order, l)
		if err != nil {
			return nil, err
		}
		next.SupplierID = &supplierID
		next.OrderID = &order.ID
		next.OrderItemID = &l.ID
		line = l
	}

	// Measurement
	weights, err := s.weightCandidates(ctx, tx, prior, next, line, upd.ManualWeight)
	if err != nil {
		return nil, err
	}
	m, err := ResolveMeasurement(next.NativeUoM, next.NativeQty, weights)
	if err != nil {
		return nil, err
	}
	next.KgEquivalent = m.KgEquivalent
	next.VolumetricWeightUsed = m.WeightUsed
	next.WeightSource = m.WeightSource

	// Price lock and cost
	if upd.UnitPrice != nil && upd.UnitPrice.IsNegative() {
		return nil, invalid("unit_price", "must not be negative")
	}
	if upd.TotalCost != nil && upd.TotalCost.IsNegative() {
		return nil, invalid("total_cost", "must not be negative")
	}
	price := DecidePrice(s.cfg.Policy, actor, line, upd.UnitPrice, prior.UnitPrice)
	if price.OverrideIgnored {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"unit price %s ignored: role %s may not override order line price %s",
			upd.UnitPrice.String(), actor.Role, line.UnitPrice.String()))
	}
	if price.Replaced != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"previous unit price %s replaced by order line price %s; restate the price to keep an override",
			price.Replaced.String(), line.UnitPrice.String()))
	}
	next.UnitPrice = price.UnitPrice
	if cost := LineCost(next.UnitPrice, next.NativeQty, upd.TotalCost); cost != nil {
		next.TotalCost = cost
	}
	// A reviewer correcting pricing fields reviews them implicitly.
	reviewer := s.cfg.Policy.Allows(actor.Role, PermReviewPricing)
	switch {
	case reviewer && (upd.MarkReviewed || (!isNew && upd.editsPricing())):
		at := s.now()
		next.PricingStatus = PricingReviewed
		next.ReviewedBy = &actor.UserID
		next.ReviewedAt = &at
	case upd.MarkReviewed:
		res.Warnings = append(res.Warnings, fmt.Sprintf("pricing review ignored: role %s may not review pricing", actor.Role))
	}

	// Order progress
	if line != nil {
		prevNative := decimal.Zero
		var prevKg *decimal.Decimal
		if !isNew && prior.OrderItemID != nil && *prior.OrderItemID == line.ID {
			prevNative = prior.NativeQty
			prevKg = prior.KgEquivalent
		}
		p := ComputeProgress(prevNative, next.NativeQty, prevKg, next.KgEquivalent)
		if !p.IsZero() {
			if err := CheckBalance(line, p.DeltaNative, s.cfg.Tolerance); err != nil {
				return nil, err
			}
			advanced, err := tx.AdvanceOrderLine(ctx, line.ID, p, s.cfg.Tolerance)
			if err != nil {
				return nil, err
			}
			line = advanced
		}
		res.OrderLine = line
	}

	if isNew {
		next.RemainingKg = SeedRemainingKg(next.KgEquivalent)
	}
	next.UpdatedAt = s.now()

	if isNew {
		if err := tx.InsertDelivery(ctx, next); err != nil {
			return nil, fmt.Errorf("insert delivery: %w", err)
		}
	} else if err := tx.SaveDelivery(ctx, next); err != nil {
		return nil, fmt.Errorf("save delivery %s: %w", next.ID, err)
	}
	res.Delivery = next
	return res, nil
}

// mergeFields copies the plain (non-derived) fields of upd onto d.
func mergeFields(d *Delivery, upd DeliveryUpdate) error {
	if upd.NativeUoM != nil {
		d.NativeUoM = *upd.NativeUoM
	}
	if !d.NativeUoM.Valid() {
		return invalid("native_uom", "unsupported unit %q", d.NativeUoM)
	}
	if upd.NativeQty != nil {
		d.NativeQty = *upd.NativeQty
	}
	if upd.SupplierID != nil {
		d.SupplierID = upd.SupplierID
	}
	if upd.InvoiceNumber != nil {
		inv := strings.TrimSpace(*upd.InvoiceNumber)
		d.InvoiceNumber = &inv
	}
	if upd.DueDate != nil {
		d.DueDate = upd.DueDate
	}
	if upd.FleetSupplierID != nil {
		d.FleetSupplierID = upd.FleetSupplierID
	}
	if upd.FleetInvoice != nil {
		inv := strings.TrimSpace(*upd.FleetInvoice)
		d.FleetInvoice = &inv
	}
	if upd.FleetCost != nil {
		if upd.FleetCost.IsNegative() {
			return invalid("fleet_cost", "must not be negative")
		}
		d.FleetCost = upd.FleetCost
	}
	if upd.FleetDueDate != nil {
		d.FleetDueDate = upd.FleetDueDate
	}
	return nil
}

// weightCandidates gathers the volumetric weights for an m3 receipt. Reference data is only
// read when no higher-precedence weight is already known.
func (s *receivingService) weightCandidates(ctx context.Context, tx Tx, prior, next *Delivery, line *OrderLine, manual *decimal.Decimal) (WeightCandidates, error) {
	var w WeightCandidates
	if next.NativeUoM != UoMCubicMeter {
		return w, nil
	}

	w.Manual = manual
	if w.Manual == nil && prior.WeightSource == WeightSourceManual {
		// A correction that does not restate the inline weight keeps the one it was entered with.
		w.Manual = prior.VolumetricWeightUsed
	}
	if line != nil {
		w.OrderLine = line.VolumetricWeight
	}
	if usableWeight(w.OrderLine) {
		return w, nil
	}

	if next.SupplierID != nil {
		ag, err := tx.ActiveAgreement(ctx, *next.SupplierID, next.MaterialID)
		if err != nil {
			return w, fmt.Errorf("load supplier agreement: %w", err)
		}
		if ag.Active() {
			w.Agreement = ag.VolumetricWeight
		}
	}
	if usableWeight(w.Agreement) {
		return w, nil
	}

	mat, err := tx.GetMaterial(ctx, next.MaterialID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return w, invalid("material_id", "material %s not found", next.MaterialID)
		}
		return w, fmt.Errorf("load material %s: %w", next.MaterialID, err)
	}
	w.MaterialDefault = mat.BulkDensity
	return w, nil
}

// inTxWithRetry runs fn in a transaction and, on a persistence conflict, once more against
// fresh reads. fn must not carry state between attempts.
func (s *receivingService) inTxWithRetry(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if !errors.Is(err, ErrPersistenceConflict) {
		return err
	}
	s.log.Warn().Err(err).Msg("persistence conflict, retrying against a fresh read")
	err = s.store.InTx(ctx, fn)
	if errors.Is(err, ErrPersistenceConflict) {
		return fmt.Errorf("conflict persisted after retry, resubmit the update: %w", err)
	}
	return err
}

// followUp runs the payable pass and the three-way match for a committed receipt.
func (s *receivingService) followUp(ctx context.Context, res *ReceiptResult) {
	rec, err := s.ReconcilePayables(ctx, res.Delivery.ID)
	if err != nil {
		res.SideEffectErr = &SideEffectError{Stage: "payable reconciliation", Err: err}
		s.log.Error().Err(err).Str("delivery_id", res.Delivery.ID.String()).
			Msg("payable reconciliation failed after delivery commit")
		return
	}
	res.Payables = rec.Payables
	res.PayableLines = rec.Lines
	res.Warnings = append(res.Warnings, s.threeWayMatch(ctx, rec.Lines)...)
}

func (s *receivingService) GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	var d *Delivery
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		d, err = tx.GetDelivery(ctx, id)
		return err
	})
	return d, err
}
