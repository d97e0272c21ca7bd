package core

import "github.com/shopspring/decimal"

// SeedRemainingKg returns the FIFO remaining counter of a new delivery: its whole kg
// equivalent, or nil for receipts without one (liters).
func SeedRemainingKg(kg *decimal.Decimal) *decimal.Decimal {
	if kg == nil {
		return nil
	}
	return decPtr(*kg)
}
