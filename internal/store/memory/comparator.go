package memory

import (
	"context"

	"github.com/google/uuid"

	"receiving-engine/internal/core"
)

var (
	_ core.Store           = (*Store)(nil)
	_ core.Tx              = (*memTx)(nil)
	_ core.MatchComparator = (*Comparator)(nil)
)

// Comparator is a three-way match over the memory store: each material line linked to an
// order line is expected to amount to the ordered unit price times the received quantity.
type Comparator struct {
	store *Store
}

func NewComparator(s *Store) *Comparator {
	return &Comparator{store: s}
}

func (c *Comparator) Compare(ctx context.Context, payableID uuid.UUID) ([]core.Mismatch, error) {
	var out []core.Mismatch
	err := c.store.InTx(ctx, func(tx core.Tx) error {
		lines, err := tx.ListPayableLines(ctx, payableID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.OrderItemID == nil {
				continue
			}
			ol, err := tx.GetOrderLine(ctx, *l.OrderItemID)
			if err != nil {
				return err
			}
			expected, ok := core.ExpectedAmount(l, ol)
			if !ok || !core.Disagrees(l.Amount, expected) {
				continue
			}
			out = append(out, core.Mismatch{
				PayableID:  payableID,
				DeliveryID: l.DeliveryID,
				Category:   l.Category,
				Amount:     l.Amount,
				Expected:   expected,
			})
		}
		return nil
	})
	return out, err
}
