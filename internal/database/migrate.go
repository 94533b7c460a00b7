package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema for the checkout core. Statements are idempotent so migrate can run
// on every deploy. The UNIQUE key on orders.payment_intent_id is load-bearing:
// it is the datastore-level backstop that makes order creation idempotent
// even when two requests race past the application-level check.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		seller_id BIGINT NOT NULL,
		sku VARCHAR(64) NULL,
		slug VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		price_cents BIGINT NOT NULL,
		discount_price_cents BIGINT NULL,
		stock_quantity INT NOT NULL DEFAULT 0,
		version INT NOT NULL DEFAULT 1,
		status ENUM('draft','published') NOT NULL DEFAULT 'draft',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_products_slug (slug),
		KEY idx_products_seller (seller_id)
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		recipient VARCHAR(255) NOT NULL,
		line1 VARCHAR(255) NOT NULL,
		line2 VARCHAR(255) NULL,
		city VARCHAR(128) NOT NULL,
		state VARCHAR(128) NOT NULL,
		postcode VARCHAR(32) NOT NULL,
		country VARCHAR(2) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_addresses_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		status ENUM('pending','processing','paid','failed','cancelled') NOT NULL,
		total_cents BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		address_id BIGINT NOT NULL,
		payment_intent_id VARCHAR(255) NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uq_orders_payment_intent (payment_intent_id),
		KEY idx_orders_user (user_id),
		KEY idx_orders_status_updated (status, updated_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		unit_price_cents BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		KEY idx_order_items_order (order_id),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id)
			REFERENCES orders (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		event_id VARCHAR(255) PRIMARY KEY,
		event_type VARCHAR(128) NOT NULL,
		payment_intent_id VARCHAR(255) NOT NULL,
		processed_at DATETIME NOT NULL
	)`,
}

// Migrate applies the schema. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
