// Package catalog is the minimal product surface the checkout core needs:
// a pricing source for payment intents, create/read endpoints for sellers
// and buyers, and seed data for local development.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"github.com/cartloom/cartloom-golang/internal/apperrors"
	"github.com/cartloom/cartloom-golang/internal/models"
	"github.com/cartloom/cartloom-golang/internal/money"
)

// Service reads and writes the products table.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// PricedItem is a cart line priced from the catalog, not the client.
type PricedItem struct {
	ProductID      int64       `json:"id"`
	Name           string      `json:"name"`
	Quantity       int         `json:"quantity"`
	UnitPriceCents money.Cents `json:"unitPriceCents"`
}

// PriceItems resolves the authoritative total for a cart from current
// catalog prices (effective price = discount when set). This is the amount
// the payment intent captures; client-submitted prices never reach it.
func (s *Service) PriceItems(ctx context.Context, items []models.IntentItemInput) (money.Cents, []PricedItem, error) {
	if len(items) == 0 {
		return 0, nil, apperrors.New(apperrors.KindValidation, "No items in order")
	}

	var total money.Cents
	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		var (
			name          string
			priceCents    money.Cents
			discountCents sql.NullInt64
			status        string
		)
		err := s.DB.QueryRowContext(ctx, `
			SELECT name, price_cents, discount_price_cents, status
			FROM products WHERE id = ?`, item.ProductID).Scan(
			&name, &priceCents, &discountCents, &status)
		if err == sql.ErrNoRows {
			return 0, nil, apperrors.Newf(apperrors.KindValidation, "Product %d not found", item.ProductID)
		}
		if err != nil {
			return 0, nil, fmt.Errorf("price product %d: %w", item.ProductID, err)
		}
		if status != models.ProductStatusPublished {
			return 0, nil, apperrors.Newf(apperrors.KindValidation, "Product %d is not available", item.ProductID)
		}

		unit := priceCents
		if discountCents.Valid {
			unit = money.Cents(discountCents.Int64)
		}
		total += money.Line(unit, item.Quantity)
		priced = append(priced, PricedItem{
			ProductID:      item.ProductID,
			Name:           name,
			Quantity:       item.Quantity,
			UnitPriceCents: unit,
		})
	}
	return total, priced, nil
}

// CreateProduct inserts a published product for a seller. The slug derives
// from the name and carries a unique key.
func (s *Service) CreateProduct(ctx context.Context, sellerID int64, in models.CreateProductInput) (*models.Product, error) {
	if in.Price.IsNegative() || in.Price.IsZero() {
		return nil, apperrors.New(apperrors.KindValidation, "Price must be greater than zero")
	}

	priceCents := money.FromDecimal(in.Price)
	var discountCents *money.Cents
	if in.DiscountPrice != nil {
		if in.DiscountPrice.GreaterThanOrEqual(in.Price) || in.DiscountPrice.IsNegative() {
			return nil, apperrors.New(apperrors.KindValidation, "Discount price must be below the list price")
		}
		d := money.FromDecimal(*in.DiscountPrice)
		discountCents = &d
	}

	now := time.Now()
	productSlug := slug.Make(in.Name)

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO products (seller_id, sku, slug, name, description, price_cents, discount_price_cents, stock_quantity, version, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		sellerID, in.SKU, productSlug, in.Name, in.Description,
		priceCents, discountCents, in.StockQuantity, models.ProductStatusPublished, now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, apperrors.New(apperrors.KindValidation, "A product with this name already exists")
		}
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read product id: %w", err)
	}

	return &models.Product{
		ID:                 id,
		SellerID:           sellerID,
		SKU:                in.SKU,
		Slug:               productSlug,
		Name:               in.Name,
		Description:        in.Description,
		PriceCents:         priceCents,
		DiscountPriceCents: discountCents,
		StockQuantity:      in.StockQuantity,
		Version:            1,
		Status:             models.ProductStatusPublished,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// GetProduct loads one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var (
		p             models.Product
		discountCents sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, seller_id, sku, slug, name, description, price_cents, discount_price_cents, stock_quantity, version, status, created_at, updated_at
		FROM products WHERE id = ?`, id).Scan(
		&p.ID, &p.SellerID, &p.SKU, &p.Slug, &p.Name, &p.Description,
		&p.PriceCents, &discountCents, &p.StockQuantity, &p.Version, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.KindNotFound, "Product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", id, err)
	}
	if discountCents.Valid {
		d := money.Cents(discountCents.Int64)
		p.DiscountPriceCents = &d
	}
	return &p, nil
}

// Seed inserts a small demo catalog for local development. Existing slugs
// are skipped so the command can run repeatedly.
func (s *Service) Seed(ctx context.Context, sellerID int64) (int, error) {
	demo := []models.CreateProductInput{
		{Name: "Walnut Desk Organizer", Description: "Five-compartment organizer in oiled walnut.", Price: decimal.RequireFromString("19.99"), StockQuantity: 40},
		{Name: "Canvas Weekender Bag", Description: "Waxed canvas, leather handles, brass zips.", Price: decimal.RequireFromString("29.99"), StockQuantity: 25},
		{Name: "Ceramic Pour-Over Set", Description: "Dripper, carafe and two cups in matte stoneware.", Price: decimal.RequireFromString("54.00"), StockQuantity: 12},
		{Name: "Linen Throw Blanket", Description: "Stonewashed linen, 130x170cm.", Price: decimal.RequireFromString("89.50"), StockQuantity: 8},
	}

	created := 0
	for _, in := range demo {
		sku := "SKU-" + uuid.NewString()[:8]
		in.SKU = &sku
		if _, err := s.CreateProduct(ctx, sellerID, in); err != nil {
			if apperrors.IsKind(err, apperrors.KindValidation) {
				continue // already seeded
			}
			return created, err
		}
		created++
	}
	return created, nil
}
