package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS vendors (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		bank_account VARCHAR(64),
		qr_handle VARCHAR(128),
		wallet_handle VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(36) PRIMARY KEY,
		vendor_id VARCHAR(36) NOT NULL,
		name VARCHAR(255) NOT NULL,
		price DECIMAL(12,2) NOT NULL,
		KEY idx_products_vendor (vendor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		product_id VARCHAR(36) PRIMARY KEY,
		available INT NOT NULL,
		version INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT chk_inventory_available CHECK (available >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
		buyer_id VARCHAR(36) NOT NULL,
		product_id VARCHAR(36) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		added_at TIMESTAMP(6) NOT NULL,
		PRIMARY KEY (buyer_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(36) PRIMARY KEY,
		checkout_id VARCHAR(36) NOT NULL,
		buyer_id VARCHAR(36) NOT NULL,
		vendor_id VARCHAR(36) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		method VARCHAR(16) NOT NULL,
		status VARCHAR(32) NOT NULL,
		receipt_ref VARCHAR(255),
		created_at TIMESTAMP(6) NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL,
		KEY idx_orders_buyer (buyer_id),
		KEY idx_orders_vendor (vendor_id),
		KEY idx_orders_checkout (checkout_id),
		KEY idx_orders_status_created (status, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id VARCHAR(36) NOT NULL,
		product_id VARCHAR(36) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

// Apply creates the schema. Statements are idempotent so startup can run
// this unconditionally.
func Apply(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
