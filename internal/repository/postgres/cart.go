package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// CartRepository implements repository.CartRepository using PostgreSQL.
type CartRepository struct {
	pool database.DBTX
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(pool database.DBTX) *CartRepository {
	return &CartRepository{pool: pool}
}

// Create inserts an empty cart.
func (r *CartRepository) Create(ctx context.Context, c *domain.Cart) error {
	query := `
		INSERT INTO carts (id, user_id, total_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pool.Exec(ctx, query, c.ID, c.UserID, c.TotalQuantity, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

// GetByID retrieves a cart and its lines.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	query := `
		SELECT id, user_id, total_quantity, created_at, updated_at
		FROM carts
		WHERE id = $1`

	var c domain.Cart
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.TotalQuantity,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("cart", id)
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return &c, nil
}

func (r *CartRepository) loadLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	query := `
		SELECT id, cart_id, product_id, variant_id, custom_product_id, quantity, price_amount, price_currency, created_at
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var (
			l                          domain.CartLine
			productID, variantID, cpID *string
		)
		if err := rows.Scan(
			&l.ID,
			&l.CartID,
			&productID,
			&variantID,
			&cpID,
			&l.Quantity,
			&l.PriceAmount,
			&l.PriceCurrency,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		if l.Ref, err = domain.RefFromColumns(productID, variantID, cpID); err != nil {
			return nil, fmt.Errorf("cart line %s: %w", l.ID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", err)
	}
	return lines, nil
}

// AddLine inserts a cart line.
func (r *CartRepository) AddLine(ctx context.Context, l *domain.CartLine) error {
	query := `
		INSERT INTO cart_lines (id, cart_id, product_id, variant_id, custom_product_id, quantity, price_amount, price_currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	productID, variantID, cpID := domain.RefColumns(l.Ref)
	_, err := r.pool.Exec(ctx, query,
		l.ID,
		l.CartID,
		productID,
		variantID,
		cpID,
		l.Quantity,
		l.PriceAmount,
		l.PriceCurrency,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

// UpdateLineQuantity sets a line's quantity.
func (r *CartRepository) UpdateLineQuantity(ctx context.Context, cartID, lineID string, qty int) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE cart_lines SET quantity = $3 WHERE id = $2 AND cart_id = $1`,
		cartID, lineID, qty,
	)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("cart line", lineID)
	}
	return nil
}

// DeleteLine removes a line.
func (r *CartRepository) DeleteLine(ctx context.Context, cartID, lineID string) error {
	ct, err := r.pool.Exec(ctx,
		`DELETE FROM cart_lines WHERE id = $2 AND cart_id = $1`,
		cartID, lineID,
	)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("cart line", lineID)
	}
	return nil
}

// RecountTotal recomputes total_quantity in a single statement.
func (r *CartRepository) RecountTotal(ctx context.Context, cartID string) (int, error) {
	query := `
		UPDATE carts
		SET total_quantity = (SELECT COALESCE(SUM(quantity), 0) FROM cart_lines WHERE cart_id = $1),
			updated_at = $2
		WHERE id = $1
		RETURNING total_quantity`

	var total int
	err := r.pool.QueryRow(ctx, query, cartID, time.Now().UTC()).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.NotFound("cart", cartID)
		}
		return 0, fmt.Errorf("recount cart: %w", err)
	}
	return total, nil
}

// Clear empties the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) (err error) {
	ctx, end := database.TraceQuery(ctx, "ClearCart", "DELETE FROM cart_lines; UPDATE carts")
	defer func() { end(err) }()

	if _, err = r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE carts SET total_quantity = 0, updated_at = $2 WHERE id = $1`,
		cartID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reset cart quantity: %w", err)
	}
	return nil
}
