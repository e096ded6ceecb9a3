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

const discountColumns = `id, code, type, value, active, starts_at, ends_at, min_order_amount, usage_limit, created_at`

// DiscountRepository implements repository.DiscountRepository using PostgreSQL.
type DiscountRepository struct {
	pool database.DBTX
}

// NewDiscountRepository creates a new PostgreSQL-backed discount repository.
func NewDiscountRepository(pool database.DBTX) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// GetByCode retrieves a discount by its normalized code.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1`
	return r.get(ctx, "GetDiscountByCode", query, code)
}

// GetByCodeForUpdate locks the discount row for the rest of the transaction.
// Concurrent redemptions of the same code queue behind the lock, so the
// usage count each one sees includes every order committed before it.
func (r *DiscountRepository) GetByCodeForUpdate(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1 FOR UPDATE`
	return r.get(ctx, "GetDiscountByCodeForUpdate", query, code)
}

func (r *DiscountRepository) get(ctx context.Context, op, query, code string) (_ *domain.Discount, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var d domain.Discount
	err = r.pool.QueryRow(ctx, query, code).Scan(
		&d.ID,
		&d.Code,
		&d.Type,
		&d.Value,
		&d.Active,
		&d.StartsAt,
		&d.EndsAt,
		&d.MinOrderAmount,
		&d.UsageLimit,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get discount by code: %w", err)
	}
	return &d, nil
}

// CountRedemptions counts every order that applied the discount. Canceled
// orders keep their redemption.
func (r *DiscountRepository) CountRedemptions(ctx context.Context, discountID string) (n int, err error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE applied_discount_id = $1`

	ctx, end := database.TraceQuery(ctx, "CountRedemptions", query)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, query, discountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count discount redemptions: %w", err)
	}
	return n, nil
}
