package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	pool database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetProduct retrieves a product by ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, price_amount, price_currency, active
		FROM products
		WHERE id = $1`

	var p domain.Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.PriceAmount,
		&p.PriceCurrency,
		&p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// GetVariant retrieves a variant by ID.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	query := `
		SELECT id, product_id, sku, inventory_quantity, available, price_amount, price_currency, created_at
		FROM product_variants
		WHERE id = $1`

	var v domain.Variant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.ProductID,
		&v.SKU,
		&v.InventoryQuantity,
		&v.Available,
		&v.PriceAmount,
		&v.PriceCurrency,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("variant", id)
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return &v, nil
}

// GetCustomProduct retrieves a custom product by ID.
func (r *CatalogRepository) GetCustomProduct(ctx context.Context, id string) (*domain.CustomProduct, error) {
	query := `
		SELECT id, user_id, name, price_amount, price_currency
		FROM custom_products
		WHERE id = $1`

	var c domain.CustomProduct
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.PriceAmount,
		&c.PriceCurrency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("custom product", id)
		}
		return nil, fmt.Errorf("get custom product: %w", err)
	}
	return &c, nil
}
