package core

import "github.com/google/uuid"

// ValidateLinkage checks that delivery d may reference line (which belongs to order).
// It returns the supplier the delivery should carry: the delivery's own supplier or, when it
// has none yet, the order's supplier. d is not modified.
func ValidateLinkage(d *Delivery, order *PurchaseOrder, line *OrderLine) (uuid.UUID, error) {
	if line.OrderID != order.ID {
		return uuid.Nil, invalid("order_item_id", "order line %s does not belong to order %s", line.ID, order.ID)
	}
	if order.PlantID != d.PlantID {
		return uuid.Nil, invalid("order_item_id", "order %s belongs to plant %s, delivery is at plant %s",
			order.ID, order.PlantID, d.PlantID)
	}
	if !line.IsService {
		if line.MaterialID == nil || *line.MaterialID != d.MaterialID {
			return uuid.Nil, invalid("order_item_id", "order line %s is for a different material than delivery material %s",
				line.ID, d.MaterialID)
		}
	}
	if d.SupplierID == nil {
		return order.SupplierID, nil
	}
	if *d.SupplierID != order.SupplierID {
		return uuid.Nil, invalid("supplier_id", "delivery supplier %s does not match order supplier %s",
			*d.SupplierID, order.SupplierID)
	}
	return *d.SupplierID, nil
}
