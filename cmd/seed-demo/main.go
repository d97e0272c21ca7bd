// seed-demo loads a small reference dataset (one plant, two materials, one supplier and an open
// purchase order) so the CLI can be exercised against a fresh database. Safe to re-run.
//
// Usage: go run ./cmd/seed-demo
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"receiving-engine/internal/config"
	"receiving-engine/internal/db"
	"receiving-engine/internal/logger"
)

const (
	businessUnitID = "7f1c0a52-0000-4000-8000-000000000001"
	plantID        = "7f1c0a52-0000-4000-8000-000000000010"
	cementID       = "7f1c0a52-0000-4000-8000-000000000100"
	sandID         = "7f1c0a52-0000-4000-8000-000000000101"
	supplierID     = "7f1c0a52-0000-4000-8000-000000001000"
	haulerID       = "7f1c0a52-0000-4000-8000-000000001001"
	agreementID    = "7f1c0a52-0000-4000-8000-000000002000"
	orderID        = "7f1c0a52-0000-4000-8000-000000003000"
	cementLineID   = "7f1c0a52-0000-4000-8000-000000003001"
	sandLineID     = "7f1c0a52-0000-4000-8000-000000003002"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment, ServiceName: "seed-demo"})

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	steps := []struct {
		name string
		sql  string
		args []any
	}{
		{"business unit", `
			INSERT INTO business_units (id, name, default_tax_rate) VALUES ($1, 'Frontera Norte', 0.08)
			ON CONFLICT (id) DO NOTHING`, []any{businessUnitID}},
		{"plant", `
			INSERT INTO plants (id, code, business_unit_id) VALUES ($1, 'P001', $2)
			ON CONFLICT (id) DO NOTHING`, []any{plantID, businessUnitID}},
		{"materials", `
			INSERT INTO materials (id, name, bulk_density) VALUES
			    ($1, 'Cemento CPC 30R', NULL),
			    ($2, 'Arena triturada', 1550)
			ON CONFLICT (id) DO NOTHING`, []any{cementID, sandID}},
		{"suppliers", `
			INSERT INTO suppliers (id, name, payment_terms_days) VALUES
			    ($1, 'Cementos del Norte', 30),
			    ($2, 'Fletes Rápidos', 15)
			ON CONFLICT (id) DO NOTHING`, []any{supplierID, haulerID}},
		{"supplier agreement", `
			INSERT INTO supplier_agreements (id, supplier_id, material_id, volumetric_weight, tax_rate)
			VALUES ($1, $2, $3, 1600, NULL)
			ON CONFLICT (id) DO NOTHING`, []any{agreementID, supplierID, sandID}},
		{"purchase order", `
			INSERT INTO purchase_orders (id, plant_id, supplier_id, po_number, currency)
			VALUES ($1, $2, $3, 'OC-0001', 'MXN')
			ON CONFLICT (id) DO NOTHING`, []any{orderID, plantID, supplierID}},
		{"order lines", `
			INSERT INTO purchase_order_items (id, po_id, material_id, uom, qty_ordered, unit_price) VALUES
			    ($1, $3, $4, 'kg', 50000, 3.20),
			    ($2, $3, $5, 'm3', 100, 280.00)
			ON CONFLICT (id) DO NOTHING`, []any{cementLineID, sandLineID, orderID, cementID, sandID}},
	}

	for _, step := range steps {
		log.Info().Str("step", step.name).Msg("Seeding")
		if _, err := tx.Exec(ctx, step.sql, step.args...); err != nil {
			log.Fatal().Err(err).Str("step", step.name).Msg("Seed failed")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit")
	}

	logIDs(log)
}

func logIDs(log zerolog.Logger) {
	log.Info().
		Str("plant_id", plantID).
		Str("cement_id", cementID).
		Str("sand_id", sandID).
		Str("supplier_id", supplierID).
		Str("hauler_id", haulerID).
		Str("order_id", orderID).
		Str("cement_line_id", cementLineID).
		Str("sand_line_id", sandLineID).
		Msg("Demo data ready")
}
