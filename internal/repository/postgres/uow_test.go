package postgres

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func TestStore_Do_CommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE product_variants").
		WithArgs("var-1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Inventory.DecrementVariant(ctx, "var-1", 1)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Do_RollsBackOnError(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	boom := errors.New("payment insert failed")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE product_variants").
		WithArgs("var-1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Inventory.DecrementVariant(ctx, "var-1", 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Do_DeadlockIsConflict(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE product_variants").
		WithArgs("var-b", 1).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()

	err := store.Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Inventory.DecrementVariant(ctx, "var-b", 1)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, apperrors.CodeConcurrency, appErr.Code)
	assert.Contains(t, appErr.Message, "please try again")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Do_SerializationFailureOnCommitIsConflict(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err := store.Do(context.Background(), func(context.Context, repository.Repositories) error {
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestStore_Repositories_AllBound(t *testing.T) {
	repos := NewStore(newMock(t)).Repositories()

	assert.NotNil(t, repos.Catalog)
	assert.NotNil(t, repos.Inventory)
	assert.NotNil(t, repos.Discounts)
	assert.NotNil(t, repos.Carts)
	assert.NotNil(t, repos.Addresses)
	assert.NotNil(t, repos.Orders)
	assert.NotNil(t, repos.Payments)
	assert.NotNil(t, repos.Outbox)
}
