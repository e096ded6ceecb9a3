package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

const orderColumns = `id, order_number, user_id, cart_id, status, subtotal_amount, discount_amount,
	surcharge_amount, total_amount, currency, applied_discount_id, discount_code, contact_email,
	shipping_address_id, billing_address_id, canceled_reason, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order and its items. It expects to run inside the
// caller's transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	orderQuery := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", orderQuery)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, orderQuery,
		o.ID,
		o.OrderNumber,
		o.UserID,
		nullString(o.CartID),
		o.Status,
		o.SubtotalAmount,
		o.DiscountAmount,
		o.SurchargeAmount,
		o.TotalAmount,
		o.Currency,
		nullString(o.DiscountID),
		o.DiscountCode,
		o.ContactEmail,
		o.ShippingAddressID,
		o.BillingAddressID,
		o.CanceledReason,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, variant_id, custom_product_id, stock_variant_id, quantity, unit_price, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, item := range o.Items {
		productID, variantID, cpID := domain.RefColumns(item.Ref)
		_, err = r.pool.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			productID,
			variantID,
			cpID,
			nullString(item.StockVariantID),
			item.Quantity,
			item.UnitPrice,
			item.Currency,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves an order and locks its row.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return o, nil
}

// List returns orders matching the filter, newest first, with the total
// count of matches.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o                  domain.Order
			cartID, discountID *string
		)
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.UserID, &cartID, &o.Status,
			&o.SubtotalAmount, &o.DiscountAmount, &o.SurchargeAmount, &o.TotalAmount, &o.Currency,
			&discountID, &o.DiscountCode, &o.ContactEmail,
			&o.ShippingAddressID, &o.BillingAddressID, &o.CanceledReason,
			&o.CreatedAt, &o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		o.CartID, o.DiscountID = derefString(cartID), derefString(discountID)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if len(orders) == 0 {
		return orders, totalCount, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, totalCount, nil
}

// UpdateStatus changes the status of an order and sets the cancel reason.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status, reason string) error {
	query := `
		UPDATE orders
		SET status = $1, canceled_reason = $2, updated_at = $3
		WHERE id = $4`

	ct, err := r.pool.Exec(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

// loadItems batch-loads the items of the given orders keyed by order ID.
func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, variant_id, custom_product_id, stock_variant_id, quantity, unit_price, currency
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item                              domain.OrderItem
			productID, variantID, cpID, stock *string
		)
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&productID,
			&variantID,
			&cpID,
			&stock,
			&item.Quantity,
			&item.UnitPrice,
			&item.Currency,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.Ref, err = domain.RefFromColumns(productID, variantID, cpID); err != nil {
			return nil, fmt.Errorf("order item %s: %w", item.ID, err)
		}
		item.StockVariantID = derefString(stock)
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}
	return byOrder, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                  domain.Order
		cartID, discountID *string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&cartID,
		&o.Status,
		&o.SubtotalAmount,
		&o.DiscountAmount,
		&o.SurchargeAmount,
		&o.TotalAmount,
		&o.Currency,
		&discountID,
		&o.DiscountCode,
		&o.ContactEmail,
		&o.ShippingAddressID,
		&o.BillingAddressID,
		&o.CanceledReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.CartID, o.DiscountID = derefString(cartID), derefString(discountID)
	return &o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
