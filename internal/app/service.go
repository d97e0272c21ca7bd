package app

import (
	"context"
)

// ApplicationService is the single interface all adapters (CLI, seeders) call.
// It decouples presentation from business logic. Implementations contain no display logic;
// they translate transport-shaped requests into core calls and core results back.
type ApplicationService interface {
	// RecordDelivery records a new material delivery at a plant.
	RecordDelivery(ctx context.Context, req RecordDeliveryRequest) (*DeliveryResult, error)

	// CorrectDelivery applies a correction to an existing delivery. Omitted fields are left
	// untouched. When the correction is rejected nothing is written.
	CorrectDelivery(ctx context.Context, req CorrectDeliveryRequest) (*DeliveryResult, error)

	// ReconcilePayables re-runs payable synchronization for a delivery. Safe to repeat.
	ReconcilePayables(ctx context.Context, deliveryID string) (*PayablesResult, error)

	// ApplyCredit spreads a supplier credit over an order line and reprices its deliveries.
	ApplyCredit(ctx context.Context, req ApplyCreditRequest) (*CreditResult, error)

	// GetDelivery returns a delivery by id.
	GetDelivery(ctx context.Context, deliveryID string) (*DeliveryResult, error)
}
