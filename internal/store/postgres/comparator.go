package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"receiving-engine/internal/core"
)

var _ core.MatchComparator = (*Comparator)(nil)

// Comparator runs the three-way match in SQL: invoiced amount against ordered unit price times
// received native quantity, for material lines linked to an order line.
type Comparator struct {
	pool *pgxpool.Pool
}

func NewComparator(pool *pgxpool.Pool) *Comparator {
	return &Comparator{pool: pool}
}

func (c *Comparator) Compare(ctx context.Context, payableID uuid.UUID) ([]core.Mismatch, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT pi.entry_id, pi.cost_category, pi.amount, poi.unit_price * pi.native_qty AS expected
		FROM payable_items pi
		JOIN purchase_order_items poi ON poi.id = pi.po_item_id
		WHERE pi.payable_id = $1
		  AND pi.cost_category = 'material'
		  AND abs(pi.amount - poi.unit_price * pi.native_qty) > $2
		ORDER BY pi.entry_id`,
		payableID, core.MatchTolerance)
	if err != nil {
		return nil, fmt.Errorf("three-way match query: %w", err)
	}
	defer rows.Close()

	var out []core.Mismatch
	for rows.Next() {
		m := core.Mismatch{PayableID: payableID}
		var expected decimal.Decimal
		if err := rows.Scan(&m.DeliveryID, &m.Category, &m.Amount, &expected); err != nil {
			return nil, fmt.Errorf("scan mismatch: %w", err)
		}
		m.Expected = expected
		out = append(out, m)
	}
	return out, rows.Err()
}
