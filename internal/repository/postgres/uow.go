package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// Store wires every PostgreSQL repository to one connection pool.
type Store struct {
	db database.Migrator
}

// NewStore creates a Store backed by db, usually a *pgxpool.Pool.
func NewStore(db database.Migrator) *Store {
	return &Store{db: db}
}

// Repositories returns repositories that run each statement on its own.
func (s *Store) Repositories() repository.Repositories {
	return bind(s.db)
}

// Do runs fn inside a READ COMMITTED transaction with repositories bound to
// it. Deadlocks and serialization failures come back as a retryable
// conflict.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	err := database.RunInTx(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
	if database.IsTxConflict(err) {
		return apperrors.Conflict("The order conflicted with a concurrent checkout, please try again")
	}
	return err
}

func bind(db database.DBTX) repository.Repositories {
	return repository.Repositories{
		Catalog:   NewCatalogRepository(db),
		Inventory: NewInventoryRepository(db),
		Discounts: NewDiscountRepository(db),
		Carts:     NewCartRepository(db),
		Addresses: NewAddressRepository(db),
		Orders:    NewOrderRepository(db),
		Payments:  NewPaymentRepository(db),
		Outbox:    NewOutboxRepository(db),
	}
}
