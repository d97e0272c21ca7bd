// Package memory is an in-process core.Store. A transaction holds the store lock from begin to
// end and works on a copy of the mutable state, which replaces the committed state only when
// the transaction function returns nil.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"receiving-engine/internal/core"
)

type lineKey struct {
	deliveryID uuid.UUID
	category   core.CostCategory
}

type state struct {
	orders       map[uuid.UUID]core.PurchaseOrder
	lines        map[uuid.UUID]core.OrderLine
	deliveries   map[uuid.UUID]core.Delivery
	payables     map[uuid.UUID]core.Payable
	payableKeys  map[core.PayableKey]uuid.UUID
	payableLines map[uuid.UUID]core.PayableLine
	lineKeys     map[lineKey]uuid.UUID
	credits      []core.OrderLineCredit
}

func newState() state {
	return state{
		orders:       map[uuid.UUID]core.PurchaseOrder{},
		lines:        map[uuid.UUID]core.OrderLine{},
		deliveries:   map[uuid.UUID]core.Delivery{},
		payables:     map[uuid.UUID]core.Payable{},
		payableKeys:  map[core.PayableKey]uuid.UUID{},
		payableLines: map[uuid.UUID]core.PayableLine{},
		lineKeys:     map[lineKey]uuid.UUID{},
	}
}

func (s state) clone() state {
	return state{
		orders:       maps.Clone(s.orders),
		lines:        maps.Clone(s.lines),
		deliveries:   maps.Clone(s.deliveries),
		payables:     maps.Clone(s.payables),
		payableKeys:  maps.Clone(s.payableKeys),
		payableLines: maps.Clone(s.payableLines),
		lineKeys:     maps.Clone(s.lineKeys),
		credits:      slices.Clone(s.credits),
	}
}

// Store keeps reference data and receiving state in maps.
type Store struct {
	mu sync.Mutex

	materials  map[uuid.UUID]core.Material
	plants     map[uuid.UUID]core.Plant
	units      map[uuid.UUID]core.BusinessUnit
	suppliers  map[uuid.UUID]core.Supplier
	agreements []core.SupplierAgreement

	state state
	now   func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		materials: map[uuid.UUID]core.Material{},
		plants:    map[uuid.UUID]core.Plant{},
		units:     map[uuid.UUID]core.BusinessUnit{},
		suppliers: map[uuid.UUID]core.Supplier{},
		state:     newState(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InTx implements core.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// ── Seeding ──────────────────────────────────────────────────────────────────

func (s *Store) PutMaterial(m core.Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = m
}

func (s *Store) PutPlant(p core.Plant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[p.ID] = p
}

func (s *Store) PutBusinessUnit(b core.BusinessUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[b.ID] = b
}

func (s *Store) PutSupplier(sup core.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = sup
}

func (s *Store) PutAgreement(a core.SupplierAgreement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements = append(s.agreements, a)
}

func (s *Store) PutOrder(o core.PurchaseOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = o
}

// PutOrderLine seeds an order line. A zero status is derived from the received counters.
func (s *Store) PutOrderLine(l core.OrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.Status == "" {
		l.Status = core.OrderLineStatusFor(l.QtyReceivedNative, l.QtyOrdered, core.QtyTolerance)
	}
	s.state.lines[l.ID] = l
}

// ── Inspection ───────────────────────────────────────────────────────────────

// OrderLine returns the committed state of an order line.
func (s *Store) OrderLine(id uuid.UUID) (core.OrderLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.lines[id]
	return l, ok
}

// Payables returns every committed payable.
func (s *Store) Payables() []core.Payable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.state.payables))
}

// PayableLines returns every committed payable line.
func (s *Store) PayableLines() []core.PayableLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.state.payableLines))
}

// Credits returns the credit history of an order line, oldest first.
func (s *Store) Credits(lineID uuid.UUID) []core.OrderLineCredit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.OrderLineCredit
	for _, c := range s.state.credits {
		if c.OrderLineID == lineID {
			out = append(out, c)
		}
	}
	return out
}

// ── Tx ───────────────────────────────────────────────────────────────────────

type memTx struct {
	store *Store
	st    state
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, core.ErrNotFound)
}

func (t *memTx) GetMaterial(_ context.Context, id uuid.UUID) (*core.Material, error) {
	m, ok := t.store.materials[id]
	if !ok {
		return nil, notFound("material", id)
	}
	return &m, nil
}

func (t *memTx) GetPlant(_ context.Context, id uuid.UUID) (*core.Plant, error) {
	p, ok := t.store.plants[id]
	if !ok {
		return nil, notFound("plant", id)
	}
	return &p, nil
}

func (t *memTx) GetBusinessUnit(_ context.Context, id uuid.UUID) (*core.BusinessUnit, error) {
	b, ok := t.store.units[id]
	if !ok {
		return nil, notFound("business unit", id)
	}
	return &b, nil
}

func (t *memTx) GetSupplier(_ context.Context, id uuid.UUID) (*core.Supplier, error) {
	sup, ok := t.store.suppliers[id]
	if !ok {
		return nil, notFound("supplier", id)
	}
	return &sup, nil
}

// ActiveAgreement returns the most recently effective active agreement.
func (t *memTx) ActiveAgreement(_ context.Context, supplierID, materialID uuid.UUID) (*core.SupplierAgreement, error) {
	var best *core.SupplierAgreement
	for i := range t.store.agreements {
		a := t.store.agreements[i]
		if a.SupplierID != supplierID || a.MaterialID == nil || *a.MaterialID != materialID || !a.Active() {
			continue
		}
		if best == nil || a.EffectiveFrom.After(best.EffectiveFrom) {
			best = &a
		}
	}
	return best, nil
}

func (t *memTx) GetOrder(_ context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, notFound("purchase order", id)
	}
	return &o, nil
}

func (t *memTx) GetOrderLine(_ context.Context, id uuid.UUID) (*core.OrderLine, error) {
	l, ok := t.st.lines[id]
	if !ok {
		return nil, notFound("order line", id)
	}
	return &l, nil
}

func (t *memTx) GetDelivery(_ context.Context, id uuid.UUID) (*core.Delivery, error) {
	d, ok := t.st.deliveries[id]
	if !ok {
		return nil, notFound("delivery", id)
	}
	return &d, nil
}

// LockDelivery is GetDelivery: the transaction already holds the store exclusively.
func (t *memTx) LockDelivery(ctx context.Context, id uuid.UUID) (*core.Delivery, error) {
	return t.GetDelivery(ctx, id)
}

func (t *memTx) InsertDelivery(_ context.Context, d *core.Delivery) error {
	if _, exists := t.st.deliveries[d.ID]; exists {
		return fmt.Errorf("delivery %s already exists", d.ID)
	}
	t.st.deliveries[d.ID] = *d
	return nil
}

func (t *memTx) SaveDelivery(_ context.Context, d *core.Delivery) error {
	if _, ok := t.st.deliveries[d.ID]; !ok {
		return notFound("delivery", d.ID)
	}
	t.st.deliveries[d.ID] = *d
	return nil
}

func (t *memTx) ListDeliveriesByOrderLine(_ context.Context, lineID uuid.UUID) ([]core.Delivery, error) {
	var out []core.Delivery
	for _, d := range t.st.deliveries {
		if d.OrderItemID != nil && *d.OrderItemID == lineID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b core.Delivery) int { return a.EntryTime.Compare(b.EntryTime) })
	return out, nil
}

func (t *memTx) AdvanceOrderLine(_ context.Context, lineID uuid.UUID, p core.Progress, tolerance decimal.Decimal) (*core.OrderLine, error) {
	l, ok := t.st.lines[lineID]
	if !ok {
		return nil, notFound("order line", lineID)
	}
	if err := core.ApplyProgress(&l, p, tolerance); err != nil {
		return nil, err
	}
	l.UpdatedAt = t.store.now()
	t.st.lines[lineID] = l
	return &l, nil
}

func (t *memTx) LockOrderLine(ctx context.Context, id uuid.UUID) (*core.OrderLine, error) {
	return t.GetOrderLine(ctx, id)
}

func (t *memTx) SaveOrderLinePrice(_ context.Context, line *core.OrderLine) error {
	l, ok := t.st.lines[line.ID]
	if !ok {
		return notFound("order line", line.ID)
	}
	l.UnitPrice = line.UnitPrice
	l.OriginalUnitPrice = line.OriginalUnitPrice
	l.CreditAmount = line.CreditAmount
	l.UpdatedAt = line.UpdatedAt
	t.st.lines[l.ID] = l
	return nil
}

func (t *memTx) InsertOrderLineCredit(_ context.Context, c *core.OrderLineCredit) error {
	t.st.credits = append(t.st.credits, *c)
	return nil
}

func (t *memTx) UpsertPayable(_ context.Context, key core.PayableKey, h core.PayableHeader) (*core.Payable, error) {
	now := t.store.now()
	if id, ok := t.st.payableKeys[key]; ok {
		p := t.st.payables[id]
		p.TaxRate = h.TaxRate
		p.DueDate = h.DueDate
		p.UpdatedAt = now
		t.st.payables[id] = p
		return &p, nil
	}
	p := core.Payable{
		ID:         uuid.New(),
		PayableKey: key,
		TaxRate:    h.TaxRate,
		Currency:   h.Currency,
		DueDate:    h.DueDate,
		Status:     core.PayableOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.st.payables[p.ID] = p
	t.st.payableKeys[key] = p.ID
	return &p, nil
}

func (t *memTx) UpsertPayableLine(_ context.Context, l core.PayableLine) (*core.PayableLine, *uuid.UUID, error) {
	if _, ok := t.st.payables[l.PayableID]; !ok {
		return nil, nil, notFound("payable", l.PayableID)
	}
	k := lineKey{l.DeliveryID, l.Category}
	var previous *uuid.UUID
	if id, ok := t.st.lineKeys[k]; ok {
		existing := t.st.payableLines[id]
		l.ID = existing.ID
		if existing.PayableID != l.PayableID {
			prev := existing.PayableID
			previous = &prev
		}
	} else {
		l.ID = uuid.New()
		t.st.lineKeys[k] = l.ID
	}
	l.UpdatedAt = t.store.now()
	t.st.payableLines[l.ID] = l
	return &l, previous, nil
}

func (t *memTx) DeletePayableLine(_ context.Context, deliveryID uuid.UUID, category core.CostCategory) (*uuid.UUID, error) {
	k := lineKey{deliveryID, category}
	id, ok := t.st.lineKeys[k]
	if !ok {
		return nil, nil
	}
	payableID := t.st.payableLines[id].PayableID
	delete(t.st.payableLines, id)
	delete(t.st.lineKeys, k)
	return &payableID, nil
}

func (t *memTx) GetPayable(_ context.Context, id uuid.UUID) (*core.Payable, error) {
	p, ok := t.st.payables[id]
	if !ok {
		return nil, notFound("payable", id)
	}
	return &p, nil
}

func (t *memTx) GetPayableByKey(ctx context.Context, key core.PayableKey) (*core.Payable, error) {
	id, ok := t.st.payableKeys[key]
	if !ok {
		return nil, notFound("payable", key.InvoiceNumber)
	}
	return t.GetPayable(ctx, id)
}

func (t *memTx) ListPayableLines(_ context.Context, payableID uuid.UUID) ([]core.PayableLine, error) {
	var out []core.PayableLine
	for _, l := range t.st.payableLines {
		if l.PayableID == payableID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b core.PayableLine) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return out, nil
}

func (t *memTx) SetPayableTotals(_ context.Context, id uuid.UUID, status string, subtotal, tax, total decimal.Decimal) error {
	p, ok := t.st.payables[id]
	if !ok {
		return notFound("payable", id)
	}
	p.Status = status
	p.Subtotal, p.Tax, p.Total = subtotal, tax, total
	t.st.payables[id] = p
	return nil
}
