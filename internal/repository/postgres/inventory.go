package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// InventoryRepository implements repository.InventoryRepository using PostgreSQL.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed inventory repository.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// DecrementVariant subtracts qty only when enough stock remains, so two
// concurrent checkouts can never drive inventory below zero.
func (r *InventoryRepository) DecrementVariant(ctx context.Context, variantID string, qty int) (n int64, err error) {
	query := `
		UPDATE product_variants
		SET inventory_quantity = inventory_quantity - $2
		WHERE id = $1 AND inventory_quantity >= $2`

	ctx, end := database.TraceQuery(ctx, "DecrementVariant", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, variantID, qty)
	if err != nil {
		return 0, fmt.Errorf("decrement variant stock: %w", err)
	}
	return ct.RowsAffected(), nil
}

// IncrementVariant restores qty units.
func (r *InventoryRepository) IncrementVariant(ctx context.Context, variantID string, qty int) (n int64, err error) {
	query := `
		UPDATE product_variants
		SET inventory_quantity = inventory_quantity + $2
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "IncrementVariant", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, variantID, qty)
	if err != nil {
		return 0, fmt.Errorf("increment variant stock: %w", err)
	}
	return ct.RowsAffected(), nil
}

// VariantExists reports whether the variant row exists.
func (r *InventoryRepository) VariantExists(ctx context.Context, variantID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM product_variants WHERE id = $1)`, variantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check variant exists: %w", err)
	}
	return exists, nil
}

// FirstVariantID returns the product's oldest variant, ties broken by ID.
func (r *InventoryRepository) FirstVariantID(ctx context.Context, productID string) (string, error) {
	query := `
		SELECT id
		FROM product_variants
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	var id string
	err := r.pool.QueryRow(ctx, query, productID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("get first variant: %w", err)
	}
	return id, nil
}
