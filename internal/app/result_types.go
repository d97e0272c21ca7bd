package app

import "receiving-engine/internal/core"

// DeliveryResult is returned by delivery operations.
type DeliveryResult struct {
	Delivery     *core.Delivery
	OrderLine    *core.OrderLine    `json:",omitempty"`
	Payables     []core.Payable     `json:",omitempty"`
	PayableLines []core.PayableLine `json:",omitempty"`
	Warnings     []string           `json:",omitempty"`
	// SideEffectError describes a payable reconciliation failure after the delivery committed.
	SideEffectError string `json:",omitempty"`
}

// PayablesResult is returned by ReconcilePayables.
type PayablesResult struct {
	Payables []core.Payable
	Lines    []core.PayableLine
}

// CreditResult is returned by ApplyCredit.
type CreditResult struct {
	OrderLine          *core.OrderLine
	Credit             *core.OrderLineCredit
	DeliveriesRepriced int
	Payables           []core.Payable `json:",omitempty"`
	Warnings           []string       `json:",omitempty"`
	SideEffectError    string         `json:",omitempty"`
}
