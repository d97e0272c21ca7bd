package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"receiving-engine/internal/core"
)

type appService struct {
	receiving core.ReceivingService
	log       zerolog.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(receiving core.ReceivingService, log zerolog.Logger) ApplicationService {
	return &appService{
		receiving: receiving,
		log:       log.With().Str("component", "app").Logger(),
	}
}

// RecordDelivery records a new material delivery at a plant.
func (s *appService) RecordDelivery(ctx context.Context, req RecordDeliveryRequest) (*DeliveryResult, error) {
	actor, err := req.Actor.toActor()
	if err != nil {
		return nil, err
	}
	plantID, err := parseID("plant_id", req.PlantID)
	if err != nil {
		return nil, err
	}
	materialID, err := parseID("material_id", req.MaterialID)
	if err != nil {
		return nil, err
	}
	upd, err := req.DeliveryFields.toUpdate()
	if err != nil {
		return nil, err
	}

	in := core.NewDelivery{PlantID: plantID, MaterialID: materialID, DeliveryUpdate: upd}
	if req.EntryTime != "" {
		in.EntryTime, err = time.Parse(time.RFC3339, req.EntryTime)
		if err != nil {
			return nil, &core.ValidationError{Field: "entry_time", Message: "must be RFC 3339"}
		}
	}

	s.log.Debug().Str("plant_id", req.PlantID).Str("role", string(actor.Role)).Msg("record delivery")
	res, err := s.receiving.CreateDelivery(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return toDeliveryResult(res), nil
}

// CorrectDelivery applies a correction to an existing delivery.
func (s *appService) CorrectDelivery(ctx context.Context, req CorrectDeliveryRequest) (*DeliveryResult, error) {
	actor, err := req.Actor.toActor()
	if err != nil {
		return nil, err
	}
	id, err := parseID("delivery_id", req.DeliveryID)
	if err != nil {
		return nil, err
	}
	upd, err := req.DeliveryFields.toUpdate()
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("delivery_id", req.DeliveryID).Str("role", string(actor.Role)).Msg("correct delivery")
	res, err := s.receiving.UpdateDelivery(ctx, actor, id, upd)
	if err != nil {
		return nil, err
	}
	return toDeliveryResult(res), nil
}

// ReconcilePayables re-runs payable synchronization for a delivery.
func (s *appService) ReconcilePayables(ctx context.Context, deliveryID string) (*PayablesResult, error) {
	id, err := parseID("delivery_id", deliveryID)
	if err != nil {
		return nil, err
	}
	res, err := s.receiving.ReconcilePayables(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PayablesResult{Payables: res.Payables, Lines: res.Lines}, nil
}

// ApplyCredit spreads a supplier credit over an order line.
func (s *appService) ApplyCredit(ctx context.Context, req ApplyCreditRequest) (*CreditResult, error) {
	actor, err := req.Actor.toActor()
	if err != nil {
		return nil, err
	}
	lineID, err := parseID("order_item_id", req.OrderItemID)
	if err != nil {
		return nil, err
	}

	res, err := s.receiving.ApplyOrderLineCredit(ctx, actor, lineID, req.Amount, req.Notes)
	if err != nil {
		return nil, err
	}
	out := &CreditResult{
		OrderLine:          res.OrderLine,
		Credit:             res.Credit,
		DeliveriesRepriced: res.DeliveriesRepriced,
		Payables:           res.Payables,
		Warnings:           res.Warnings,
	}
	if res.SideEffectErr != nil {
		out.SideEffectError = res.SideEffectErr.Error()
	}
	return out, nil
}

// GetDelivery returns a delivery by id.
func (s *appService) GetDelivery(ctx context.Context, deliveryID string) (*DeliveryResult, error) {
	id, err := parseID("delivery_id", deliveryID)
	if err != nil {
		return nil, err
	}
	d, err := s.receiving.GetDelivery(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DeliveryResult{Delivery: d}, nil
}

// ── Conversion ───────────────────────────────────────────────────────────────

func toDeliveryResult(res *core.ReceiptResult) *DeliveryResult {
	out := &DeliveryResult{
		Delivery:     res.Delivery,
		OrderLine:    res.OrderLine,
		Payables:     res.Payables,
		PayableLines: res.PayableLines,
		Warnings:     res.Warnings,
	}
	if res.SideEffectErr != nil {
		out.SideEffectError = res.SideEffectErr.Error()
	}
	return out
}

func (a ActorInput) toActor() (core.Actor, error) {
	userID, err := parseID("actor.user_id", a.UserID)
	if err != nil {
		return core.Actor{}, err
	}
	role := core.Role(strings.ToUpper(strings.TrimSpace(a.Role)))
	if role == "" {
		return core.Actor{}, &core.ValidationError{Field: "actor.role", Message: "is required"}
	}
	actor := core.Actor{UserID: userID, Role: role}
	if a.PlantID != "" {
		plantID, err := parseID("actor.plant_id", a.PlantID)
		if err != nil {
			return core.Actor{}, err
		}
		actor.PlantID = &plantID
	}
	return actor, nil
}

func (f DeliveryFields) toUpdate() (core.DeliveryUpdate, error) {
	upd := core.DeliveryUpdate{
		NativeQty:     f.NativeQty,
		ManualWeight:  f.ManualWeight,
		UnitPrice:     f.UnitPrice,
		TotalCost:     f.TotalCost,
		InvoiceNumber: f.InvoiceNumber,
		FleetInvoice:  f.FleetInvoice,
		FleetCost:     f.FleetCost,
		MarkReviewed:  f.MarkReviewed,
	}
	if f.NativeUoM != nil {
		u := core.UoM(strings.ToLower(strings.TrimSpace(*f.NativeUoM)))
		upd.NativeUoM = &u
	}

	var err error
	if upd.OrderItemID, err = parseOptionalID("order_item_id", f.OrderItemID); err != nil {
		return upd, err
	}
	if upd.SupplierID, err = parseOptionalID("supplier_id", f.SupplierID); err != nil {
		return upd, err
	}
	if upd.FleetSupplierID, err = parseOptionalID("fleet_supplier_id", f.FleetSupplierID); err != nil {
		return upd, err
	}
	if upd.DueDate, err = parseOptionalDate("due_date", f.DueDate); err != nil {
		return upd, err
	}
	if upd.FleetDueDate, err = parseOptionalDate("fleet_due_date", f.FleetDueDate); err != nil {
		return upd, err
	}
	return upd, nil
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: field, Message: fmt.Sprintf("invalid id %q", s)}
	}
	return id, nil
}

func parseOptionalID(field string, s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := parseID(field, *s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(*s))
	if err != nil {
		return nil, &core.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return &d, nil
}
