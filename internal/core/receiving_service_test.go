package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiving-engine/internal/core"
	"receiving-engine/internal/store/memory"
)

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	store  *memory.Store
	faulty *faultyStore
	svc    core.ReceivingService

	unit, plant                 uuid.UUID
	cement, sand, additive      uuid.UUID
	supplier, hauler            uuid.UUID
	order, cementLine, sandLine uuid.UUID

	exec, doser core.Actor
	entry       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.New(),
		unit:       uuid.New(),
		plant:      uuid.New(),
		cement:     uuid.New(),
		sand:       uuid.New(),
		additive:   uuid.New(),
		supplier:   uuid.New(),
		hauler:     uuid.New(),
		order:      uuid.New(),
		cementLine: uuid.New(),
		sandLine:   uuid.New(),
		entry:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.exec = core.Actor{UserID: uuid.New(), Role: core.RoleExecutive}
	f.doser = core.Actor{UserID: uuid.New(), Role: core.RoleDosificador, PlantID: &f.plant}

	terms := 30
	f.store.PutBusinessUnit(core.BusinessUnit{ID: f.unit, Name: "Norte"})
	f.store.PutPlant(core.Plant{ID: f.plant, Code: "P001", BusinessUnitID: &f.unit})
	f.store.PutMaterial(core.Material{ID: f.cement, Name: "Cement"})
	f.store.PutMaterial(core.Material{ID: f.sand, Name: "Sand", BulkDensity: decp("1500")})
	f.store.PutMaterial(core.Material{ID: f.additive, Name: "Additive"})
	f.store.PutSupplier(core.Supplier{ID: f.supplier, Name: "Cementos", PaymentTermsDays: &terms})
	f.store.PutSupplier(core.Supplier{ID: f.hauler, Name: "Fletes"})
	f.store.PutOrder(core.PurchaseOrder{ID: f.order, PlantID: f.plant, SupplierID: f.supplier, PONumber: "OC-1", Currency: "MXN"})
	f.store.PutOrderLine(core.OrderLine{
		ID: f.cementLine, OrderID: f.order, MaterialID: &f.cement, UoM: core.UoMKilogram,
		QtyOrdered: dec("100"), UnitPrice: dec("100"),
	})
	f.store.PutOrderLine(core.OrderLine{
		ID: f.sandLine, OrderID: f.order, MaterialID: &f.sand, UoM: core.UoMCubicMeter,
		QtyOrdered: dec("100"), UnitPrice: dec("280"),
	})

	f.faulty = &faultyStore{Store: f.store}
	f.svc = core.NewReceivingService(f.faulty, memory.NewComparator(f.store), core.DefaultServiceConfig(), zerolog.Nop())
	return f
}

func (f *fixture) kgReceipt(qty string, invoice string) core.NewDelivery {
	uom := core.UoMKilogram
	in := core.NewDelivery{PlantID: f.plant, MaterialID: f.cement, EntryTime: f.entry}
	in.NativeUoM = &uom
	in.NativeQty = decp(qty)
	in.OrderItemID = &f.cementLine
	if invoice != "" {
		in.InvoiceNumber = &invoice
	}
	return in
}

func (f *fixture) line(t *testing.T, id uuid.UUID) core.OrderLine {
	t.Helper()
	l, ok := f.store.OrderLine(id)
	require.True(t, ok)
	return l
}

func (f *fixture) payable(t *testing.T, supplier uuid.UUID, invoice string) core.Payable {
	t.Helper()
	for _, p := range f.store.Payables() {
		if p.SupplierID == supplier && p.InvoiceNumber == invoice {
			return p
		}
	}
	t.Fatalf("no payable for invoice %s", invoice)
	return core.Payable{}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), append([]any{fmt.Sprintf("want %s, got %s", want, got)}, msgAndArgs...)...)
}

func qty(s string) *core.DeliveryUpdate {
	return &core.DeliveryUpdate{NativeQty: decp(s)}
}

// faultyStore injects persistence conflicts and payable failures in front of the memory store.
type faultyStore struct {
	core.Store
	conflicts    atomic.Int32
	failPayables atomic.Bool
}

func (s *faultyStore) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if s.conflicts.Load() > 0 {
		s.conflicts.Add(-1)
		return fmt.Errorf("injected: %w", core.ErrPersistenceConflict)
	}
	return s.Store.InTx(ctx, func(tx core.Tx) error {
		return fn(&faultyTx{Tx: tx, store: s})
	})
}

type faultyTx struct {
	core.Tx
	store *faultyStore
}

func (t *faultyTx) UpsertPayable(ctx context.Context, key core.PayableKey, h core.PayableHeader) (*core.Payable, error) {
	if t.store.failPayables.Load() {
		return nil, errors.New("payables table unavailable")
	}
	return t.Tx.UpsertPayable(ctx, key, h)
}

// ── Order progress ───────────────────────────────────────────────────────────

func TestReceiving_CorrectionsAdvanceLineByDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", ""))
	require.NoError(t, err)
	id := res.Delivery.ID
	assertDec(t, "30", res.OrderLine.QtyReceivedNative)
	assert.Equal(t, core.OrderLinePartial, res.OrderLine.Status)
	assert.Equal(t, f.supplier, *res.Delivery.SupplierID, "supplier inherited from order")
	assert.Equal(t, f.order, *res.Delivery.OrderID)

	res, err = f.svc.UpdateDelivery(ctx, f.doser, id, *qty("50"))
	require.NoError(t, err)
	assertDec(t, "50", res.OrderLine.QtyReceivedNative)
	assertDec(t, "50", res.OrderLine.QtyReceivedKg)

	_, err = f.svc.UpdateDelivery(ctx, f.doser, id, *qty("150"))
	require.ErrorIs(t, err, core.ErrPoBalanceExceeded)

	assertDec(t, "50", f.line(t, f.cementLine).QtyReceivedNative)
	d, err := f.svc.GetDelivery(ctx, id)
	require.NoError(t, err)
	assertDec(t, "50", d.NativeQty, "rejected correction leaves the delivery untouched")
}

func TestReceiving_DecreaseLeavesLineCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("50", ""))
	require.NoError(t, err)

	res, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, *qty("40"))
	require.NoError(t, err)
	assertDec(t, "40", res.Delivery.NativeQty)
	assertDec(t, "50", f.line(t, f.cementLine).QtyReceivedNative)
}

func TestReceiving_FulfillsLine(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateDelivery(context.Background(), f.doser, f.kgReceipt("100", ""))
	require.NoError(t, err)
	assert.Equal(t, core.OrderLineFulfilled, res.OrderLine.Status)
}

func TestReceiving_ConcurrentReceiptsCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	small := uuid.New()
	f.store.PutOrderLine(core.OrderLine{
		ID: small, OrderID: f.order, MaterialID: &f.cement, UoM: core.UoMKilogram,
		QtyOrdered: dec("50"), UnitPrice: dec("10"),
	})

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		errs      = make(chan error, 2)
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := f.kgReceipt("40", "")
			in.OrderItemID = &small
			if _, err := f.svc.CreateDelivery(ctx, f.doser, in); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		assert.ErrorIs(t, err, core.ErrPoBalanceExceeded)
	}
	assertDec(t, "40", f.line(t, small).QtyReceivedNative)
}

// ── Measurement ──────────────────────────────────────────────────────────────

func TestReceiving_CubicMeterWeights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m3 := core.UoMCubicMeter

	in := core.NewDelivery{PlantID: f.plant, MaterialID: f.sand, EntryTime: f.entry}
	in.NativeUoM = &m3
	in.NativeQty = decp("10")
	in.OrderItemID = &f.sandLine

	res, err := f.svc.CreateDelivery(ctx, f.doser, in)
	require.NoError(t, err)
	assertDec(t, "15000", *res.Delivery.KgEquivalent)
	assert.Equal(t, core.WeightSourceMaterialDefault, res.Delivery.WeightSource)
	assertDec(t, "15000", res.OrderLine.QtyReceivedKg)
	assertDec(t, "15000", *res.Delivery.RemainingKg)

	f.store.PutAgreement(core.SupplierAgreement{ID: uuid.New(), SupplierID: f.supplier, MaterialID: &f.sand, VolumetricWeight: decp("1600")})
	res, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, *qty("12"))
	require.NoError(t, err)
	assertDec(t, "19200", *res.Delivery.KgEquivalent)
	assert.Equal(t, core.WeightSourceAgreement, res.Delivery.WeightSource)
	assertDec(t, "12", res.OrderLine.QtyReceivedNative)
	assertDec(t, "19200", res.OrderLine.QtyReceivedKg)
	assertDec(t, "15000", *res.Delivery.RemainingKg, "FIFO seed is set at creation only")
}

func TestReceiving_MissingConversionFactorWritesNothing(t *testing.T) {
	f := newFixture(t)
	m3 := core.UoMCubicMeter
	in := core.NewDelivery{PlantID: f.plant, MaterialID: f.additive, EntryTime: f.entry}
	in.NativeUoM = &m3
	in.NativeQty = decp("2")
	in.SupplierID = &f.supplier
	in.InvoiceNumber = strPtr("A-1")
	in.UnitPrice = decp("50")

	_, err := f.svc.CreateDelivery(context.Background(), f.doser, in)
	require.ErrorIs(t, err, core.ErrMissingConversionFactor)
	assert.Empty(t, f.store.Payables())
}

func TestReceiving_ManualWeightSurvivesCorrection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m3 := core.UoMCubicMeter
	in := core.NewDelivery{PlantID: f.plant, MaterialID: f.additive, EntryTime: f.entry}
	in.NativeUoM = &m3
	in.NativeQty = decp("2")
	in.ManualWeight = decp("1100")

	res, err := f.svc.CreateDelivery(ctx, f.doser, in)
	require.NoError(t, err)
	assert.Equal(t, core.WeightSourceManual, res.Delivery.WeightSource)

	res, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, *qty("3"))
	require.NoError(t, err)
	assertDec(t, "3300", *res.Delivery.KgEquivalent)
}

func TestReceiving_LitersHaveNoMass(t *testing.T) {
	f := newFixture(t)
	l := core.UoMLiter
	in := core.NewDelivery{PlantID: f.plant, MaterialID: f.additive, EntryTime: f.entry}
	in.NativeUoM = &l
	in.NativeQty = decp("800")

	res, err := f.svc.CreateDelivery(context.Background(), f.doser, in)
	require.NoError(t, err)
	assert.Nil(t, res.Delivery.KgEquivalent)
	assert.Nil(t, res.Delivery.RemainingKg)
	assert.Nil(t, res.OrderLine)
}

// ── Price lock ───────────────────────────────────────────────────────────────

func TestReceiving_PriceOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.kgReceipt("30", "")
	in.UnitPrice = decp("120")
	res, err := f.svc.CreateDelivery(ctx, f.exec, in)
	require.NoError(t, err)
	assertDec(t, "120", *res.Delivery.UnitPrice)
	assertDec(t, "3600", *res.Delivery.TotalCost)
	assert.Empty(t, res.Warnings)

	res, err = f.svc.CreateDelivery(ctx, f.doser, in)
	require.NoError(t, err)
	assertDec(t, "100", *res.Delivery.UnitPrice)
	assertDec(t, "3000", *res.Delivery.TotalCost)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "ignored")
}

func TestReceiving_CorrectionWithoutPriceRestoresLinePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.kgReceipt("30", "")
	in.UnitPrice = decp("120")
	res, err := f.svc.CreateDelivery(ctx, f.exec, in)
	require.NoError(t, err)
	id := res.Delivery.ID

	res, err = f.svc.UpdateDelivery(ctx, f.exec, id, *qty("31"))
	require.NoError(t, err)
	assertDec(t, "100", *res.Delivery.UnitPrice)
	assertDec(t, "3100", *res.Delivery.TotalCost)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "previous unit price 120 replaced by order line price 100")

	upd := core.DeliveryUpdate{NativeQty: decp("32"), UnitPrice: decp("120")}
	res, err = f.svc.UpdateDelivery(ctx, f.exec, id, upd)
	require.NoError(t, err)
	assertDec(t, "3840", *res.Delivery.TotalCost)
	assert.Empty(t, res.Warnings)
}

func TestReceiving_MarkReviewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("10", ""))
	require.NoError(t, err)
	id := res.Delivery.ID

	res, err = f.svc.UpdateDelivery(ctx, f.doser, id, core.DeliveryUpdate{MarkReviewed: true})
	require.NoError(t, err)
	assert.Equal(t, core.PricingDraft, res.Delivery.PricingStatus)
	assert.NotEmpty(t, res.Warnings)

	res, err = f.svc.UpdateDelivery(ctx, f.exec, id, core.DeliveryUpdate{MarkReviewed: true})
	require.NoError(t, err)
	assert.Equal(t, core.PricingReviewed, res.Delivery.PricingStatus)
	assert.Equal(t, f.exec.UserID, *res.Delivery.ReviewedBy)
}

func TestReceiving_PricingEditsMarkReviewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.kgReceipt("10", "")
	in.UnitPrice = decp("120")
	res, err := f.svc.CreateDelivery(ctx, f.exec, in)
	require.NoError(t, err)
	assert.Equal(t, core.PricingDraft, res.Delivery.PricingStatus, "creation stays draft")
	id := res.Delivery.ID

	res, err = f.svc.UpdateDelivery(ctx, f.doser, id, core.DeliveryUpdate{UnitPrice: decp("130")})
	require.NoError(t, err)
	assert.Equal(t, core.PricingDraft, res.Delivery.PricingStatus)

	res, err = f.svc.UpdateDelivery(ctx, f.doser, id, *qty("11"))
	require.NoError(t, err)
	assert.Equal(t, core.PricingDraft, res.Delivery.PricingStatus)

	res, err = f.svc.UpdateDelivery(ctx, f.exec, id, core.DeliveryUpdate{FleetSupplierID: &f.hauler, FleetCost: decp("250")})
	require.NoError(t, err)
	assert.Equal(t, core.PricingReviewed, res.Delivery.PricingStatus)
	require.NotNil(t, res.Delivery.ReviewedBy)
	assert.Equal(t, f.exec.UserID, *res.Delivery.ReviewedBy)
	assert.NotNil(t, res.Delivery.ReviewedAt)
}

func TestReceiving_PlantAssignment(t *testing.T) {
	f := newFixture(t)
	elsewhere := uuid.New()
	stranger := core.Actor{UserID: uuid.New(), Role: core.RolePlantManager, PlantID: &elsewhere}

	_, err := f.svc.CreateDelivery(context.Background(), stranger, f.kgReceipt("10", ""))
	require.ErrorIs(t, err, core.ErrForbidden)
	assertDec(t, "0", f.line(t, f.cementLine).QtyReceivedNative)
}

func TestReceiving_LinkageRejected(t *testing.T) {
	f := newFixture(t)
	in := f.kgReceipt("10", "")
	in.MaterialID = f.additive

	_, err := f.svc.CreateDelivery(context.Background(), f.doser, in)
	require.ErrorIs(t, err, core.ErrValidation)
}

// ── Payables ─────────────────────────────────────────────────────────────────

func TestReceiving_ResubmissionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.kgReceipt("30", "F-1")
	in.FleetSupplierID = &f.hauler
	in.FleetInvoice = strPtr("FL-9")
	in.FleetCost = decp("500")
	res, err := f.svc.CreateDelivery(ctx, f.doser, in)
	require.NoError(t, err)
	require.Nil(t, res.SideEffectErr)

	for range 2 {
		_, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, in.DeliveryUpdate)
		require.NoError(t, err)
	}

	assert.Len(t, f.store.Payables(), 2)
	assert.Len(t, f.store.PayableLines(), 2)
	assertDec(t, "30", f.line(t, f.cementLine).QtyReceivedNative)

	material := f.payable(t, f.supplier, "F-1")
	assertDec(t, "3000", material.Subtotal)
	assertDec(t, "480", material.Tax)
	assertDec(t, "3480", material.Total)
	assert.Equal(t, "MXN", material.Currency)
	require.NotNil(t, material.DueDate)
	assert.Equal(t, "2026-03-31", material.DueDate.Format("2006-01-02"))

	freight := f.payable(t, f.hauler, "FL-9")
	assertDec(t, "500", freight.Subtotal)
	assert.Nil(t, freight.DueDate, "hauler has no payment terms")
}

func TestReceiving_TaxRatePrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("10", "F-16"))
	require.NoError(t, err)
	assertDec(t, "0.16", f.payable(t, f.supplier, "F-16").TaxRate)

	f.store.PutAgreement(core.SupplierAgreement{ID: uuid.New(), SupplierID: f.supplier, MaterialID: &f.cement, TaxRate: decp("0.08")})
	_, err = f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("10", "F-08"))
	require.NoError(t, err)
	p := f.payable(t, f.supplier, "F-08")
	assertDec(t, "0.08", p.TaxRate)
	assertDec(t, "80", p.Tax)
}

func TestReceiving_InvoiceChangeMovesLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", "F-1"))
	require.NoError(t, err)

	res, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, core.DeliveryUpdate{InvoiceNumber: strPtr("F-2")})
	require.NoError(t, err)
	assert.Len(t, res.Payables, 2, "new and previous payable both refreshed")

	emptied := f.payable(t, f.supplier, "F-1")
	assertDec(t, "0", emptied.Total)
	assert.Equal(t, core.PayableVoid, emptied.Status)
	assertDec(t, "3000", f.payable(t, f.supplier, "F-2").Subtotal)
	assert.Equal(t, core.PayableOpen, f.payable(t, f.supplier, "F-2").Status)
	assert.Len(t, f.store.PayableLines(), 1)

	_, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, core.DeliveryUpdate{InvoiceNumber: strPtr("F-1")})
	require.NoError(t, err)
	assert.Equal(t, core.PayableOpen, f.payable(t, f.supplier, "F-1").Status)
	assert.Equal(t, core.PayableVoid, f.payable(t, f.supplier, "F-2").Status)
}

func TestReceiving_WithdrawnCostRemovesPayableLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.kgReceipt("30", "F-1")
	in.FleetSupplierID = &f.hauler
	in.FleetInvoice = strPtr("FL-9")
	in.FleetCost = decp("500")
	res, err := f.svc.CreateDelivery(ctx, f.doser, in)
	require.NoError(t, err)
	require.Len(t, f.store.PayableLines(), 2)
	id := res.Delivery.ID

	res, err = f.svc.UpdateDelivery(ctx, f.doser, id, *qty("0"))
	require.NoError(t, err)
	require.Nil(t, res.SideEffectErr)
	assertDec(t, "0", *res.Delivery.TotalCost)

	material := f.payable(t, f.supplier, "F-1")
	assertDec(t, "0", material.Subtotal)
	assertDec(t, "0", material.Total)
	assert.Equal(t, core.PayableVoid, material.Status)
	require.Len(t, f.store.PayableLines(), 1)
	assert.Equal(t, core.CostFreight, f.store.PayableLines()[0].Category)

	_, err = f.svc.UpdateDelivery(ctx, f.doser, id, core.DeliveryUpdate{FleetCost: decp("0")})
	require.NoError(t, err)
	assertDec(t, "0", f.payable(t, f.hauler, "FL-9").Subtotal)
	assert.Empty(t, f.store.PayableLines())

	_, err = f.svc.UpdateDelivery(ctx, f.doser, id, *qty("30"))
	require.NoError(t, err)
	material = f.payable(t, f.supplier, "F-1")
	assertDec(t, "3000", material.Subtotal)
	assert.Equal(t, core.PayableOpen, material.Status)
}

func TestReceiving_PayableFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.faulty.failPayables.Store(true)
	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", "F-1"))
	require.NoError(t, err)
	require.NotNil(t, res.SideEffectErr)
	assert.Contains(t, res.SideEffectErr.Error(), "retryable")
	assertDec(t, "30", f.line(t, f.cementLine).QtyReceivedNative, "phase one committed")
	assert.Empty(t, f.store.Payables())

	f.faulty.failPayables.Store(false)
	rec, err := f.svc.ReconcilePayables(ctx, res.Delivery.ID)
	require.NoError(t, err)
	require.Len(t, rec.Payables, 1)
	assertDec(t, "3000", rec.Payables[0].Subtotal)
}

func TestReceiving_CurrencyFollowsOrder(t *testing.T) {
	f := newFixture(t)
	usd := uuid.New()
	usdLine := uuid.New()
	f.store.PutOrder(core.PurchaseOrder{ID: usd, PlantID: f.plant, SupplierID: f.supplier, PONumber: "OC-USD", Currency: "USD"})
	f.store.PutOrderLine(core.OrderLine{ID: usdLine, OrderID: usd, MaterialID: &f.cement, QtyOrdered: dec("10"), UnitPrice: dec("5")})

	in := f.kgReceipt("2", "U-1")
	in.OrderItemID = &usdLine
	_, err := f.svc.CreateDelivery(context.Background(), f.doser, in)
	require.NoError(t, err)
	assert.Equal(t, "USD", f.payable(t, f.supplier, "U-1").Currency)
}

// ── Three-way match ──────────────────────────────────────────────────────────

func TestReceiving_ThreeWayMatchWarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", "F-1"))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	in := f.kgReceipt("30", "F-2")
	in.UnitPrice = decp("120")
	res, err = f.svc.CreateDelivery(ctx, f.exec, in)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "three-way match"))
	assert.Contains(t, res.Warnings[0], "invoiced 3600.00, expected 3000.00")
}

// ── Conflicts ────────────────────────────────────────────────────────────────

func TestReceiving_RetriesOnceOnConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.faulty.conflicts.Store(1)
	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", ""))
	require.NoError(t, err)
	assertDec(t, "30", res.OrderLine.QtyReceivedNative)

	f.faulty.conflicts.Store(2)
	_, err = f.svc.UpdateDelivery(ctx, f.doser, res.Delivery.ID, *qty("40"))
	require.ErrorIs(t, err, core.ErrPersistenceConflict)
	assertDec(t, "30", f.line(t, f.cementLine).QtyReceivedNative)
}

// ── Credits ──────────────────────────────────────────────────────────────────

func TestReceiving_OrderLineCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateDelivery(ctx, f.doser, f.kgReceipt("30", "F-1"))
	require.NoError(t, err)

	_, err = f.svc.ApplyOrderLineCredit(ctx, f.doser, f.cementLine, dec("1000"), "")
	require.ErrorIs(t, err, core.ErrForbidden)

	cr, err := f.svc.ApplyOrderLineCredit(ctx, f.exec, f.cementLine, dec("1000"), "descuento por volumen")
	require.NoError(t, err)
	require.Nil(t, cr.SideEffectErr)
	assertDec(t, "90", cr.OrderLine.UnitPrice)
	assertDec(t, "100", *cr.OrderLine.OriginalUnitPrice)
	assertDec(t, "1000", cr.OrderLine.CreditAmount)
	assert.Equal(t, 1, cr.DeliveriesRepriced)
	assertDec(t, "100", cr.Credit.UnitPriceBefore)

	d, err := f.svc.GetDelivery(ctx, res.Delivery.ID)
	require.NoError(t, err)
	assertDec(t, "90", *d.UnitPrice)
	assertDec(t, "2700", *d.TotalCost)
	assertDec(t, "2700", f.payable(t, f.supplier, "F-1").Subtotal)

	// Cumulative credit is capped at the original line total (100 × 100).
	_, err = f.svc.ApplyOrderLineCredit(ctx, f.exec, f.cementLine, dec("9500"), "")
	require.ErrorIs(t, err, core.ErrValidation)
	assertDec(t, "90", f.line(t, f.cementLine).UnitPrice)

	cr, err = f.svc.ApplyOrderLineCredit(ctx, f.exec, f.cementLine, dec("500"), "")
	require.NoError(t, err)
	assertDec(t, "85", cr.OrderLine.UnitPrice)
	assertDec(t, "90", cr.Credit.UnitPriceBefore)
	assert.Len(t, f.store.Credits(f.cementLine), 2)

	_, err = f.svc.ApplyOrderLineCredit(ctx, f.exec, f.cementLine, dec("0"), "")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func strPtr(s string) *string { return &s }
