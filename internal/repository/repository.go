package repository

import (
	"context"

	"github.com/utafrali/ordercore/internal/domain"
)

// CatalogRepository reads products, variants and custom products.
type CatalogRepository interface {
	// GetProduct returns a product by ID.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetVariant returns a variant by ID.
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)

	// GetCustomProduct returns a custom product by ID.
	GetCustomProduct(ctx context.Context, id string) (*domain.CustomProduct, error)
}

// InventoryRepository is the raw stock ledger. Every method runs against the
// caller's transaction when one is in use.
type InventoryRepository interface {
	// DecrementVariant subtracts qty from the variant's stock only if at
	// least qty units remain. It returns the number of rows changed: 0 means
	// the variant is missing or short.
	DecrementVariant(ctx context.Context, variantID string, qty int) (int64, error)

	// IncrementVariant adds qty back to the variant's stock unconditionally.
	IncrementVariant(ctx context.Context, variantID string, qty int) (int64, error)

	// VariantExists reports whether a variant row exists.
	VariantExists(ctx context.Context, variantID string) (bool, error)

	// FirstVariantID returns the product's first variant: lowest created_at,
	// then lowest id. It returns apperrors.ErrNotFound when the product has
	// no variants.
	FirstVariantID(ctx context.Context, productID string) (string, error)
}

// DiscountRepository reads discount codes and their derived usage.
type DiscountRepository interface {
	// GetByCode returns the discount with the given normalized code.
	GetByCode(ctx context.Context, code string) (*domain.Discount, error)

	// GetByCodeForUpdate is GetByCode holding a row lock until the
	// transaction ends.
	GetByCodeForUpdate(ctx context.Context, code string) (*domain.Discount, error)

	// CountRedemptions returns how many orders applied the discount,
	// canceled ones included.
	CountRedemptions(ctx context.Context, discountID string) (int, error)
}

// CartRepository persists carts and their lines.
type CartRepository interface {
	// Create inserts an empty cart.
	Create(ctx context.Context, cart *domain.Cart) error

	// GetByID returns a cart with its lines in insertion order.
	GetByID(ctx context.Context, id string) (*domain.Cart, error)

	// AddLine inserts a line.
	AddLine(ctx context.Context, line *domain.CartLine) error

	// UpdateLineQuantity sets the quantity of one line of the cart.
	UpdateLineQuantity(ctx context.Context, cartID, lineID string, qty int) error

	// DeleteLine removes one line of the cart.
	DeleteLine(ctx context.Context, cartID, lineID string) error

	// RecountTotal recomputes total_quantity from the cart's lines and
	// returns the new value.
	RecountTotal(ctx context.Context, cartID string) (int, error)

	// Clear deletes every line and zeroes total_quantity.
	Clear(ctx context.Context, cartID string) error
}

// AddressRepository persists postal addresses.
type AddressRepository interface {
	// Create inserts an address.
	Create(ctx context.Context, addr *domain.Address) error

	// GetByID returns an address by ID.
	GetByID(ctx context.Context, id string) (*domain.Address, error)
}

// OrderFilter holds the filtering and pagination options for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	// Create inserts an order and its items.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID returns an order with its items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByIDForUpdate is GetByID holding a row lock on the order until the
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the filter and the total match count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus changes an order's status and cancel reason.
	UpdateStatus(ctx context.Context, id, status, reason string) error
}

// PaymentRepository persists the payment record of each order.
type PaymentRepository interface {
	// Create inserts a payment.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByOrderID returns the payment of an order.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	// UpdateStatus changes a payment's status.
	UpdateStatus(ctx context.Context, id, status string) error

	// SetProviderDetails records the gateway reference and redirect URL.
	SetProviderDetails(ctx context.Context, id, providerRef, redirectURL string) error
}

// OutboxRepository stores events awaiting publication.
type OutboxRepository interface {
	// Insert stores a pending event.
	Insert(ctx context.Context, event *domain.OutboxEvent) error

	// LockPending returns up to limit pending events, oldest first, skipping
	// rows another relay already holds.
	LockPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)

	// MarkSent flags an event as published.
	MarkSent(ctx context.Context, id string) error

	// MarkFailed records a failed attempt. The event becomes failed once
	// attempts reach maxAttempts and stays pending otherwise.
	MarkFailed(ctx context.Context, id, lastErr string, maxAttempts int) error
}

// Repositories bundles every repository bound to the same connection or
// transaction.
type Repositories struct {
	Catalog   CatalogRepository
	Inventory InventoryRepository
	Discounts DiscountRepository
	Carts     CartRepository
	Addresses AddressRepository
	Orders    OrderRepository
	Payments  PaymentRepository
	Outbox    OutboxRepository
}

// UnitOfWork runs fn with repositories bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
