package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func TestInventoryRepository_DecrementVariant_Applied(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectExec(`UPDATE product_variants\s+SET inventory_quantity = inventory_quantity - \$2\s+WHERE id = \$1 AND inventory_quantity >= \$2`).
		WithArgs("var-1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := repo.DecrementVariant(context.Background(), "var-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_DecrementVariant_Short(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectExec("UPDATE product_variants").
		WithArgs("var-1", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := repo.DecrementVariant(context.Background(), "var-1", 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_DecrementVariant_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectExec("UPDATE product_variants").
		WithArgs("var-1", 1).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.DecrementVariant(context.Background(), "var-1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrement variant stock")
}

func TestInventoryRepository_IncrementVariant(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectExec(`SET inventory_quantity = inventory_quantity \+ \$2`).
		WithArgs("var-1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := repo.IncrementVariant(context.Background(), "var-1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_VariantExists(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("var-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.VariantExists(context.Background(), "var-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_FirstVariantID_Ordering(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectQuery(`FROM product_variants\s+WHERE product_id = \$1\s+ORDER BY created_at ASC, id ASC\s+LIMIT 1`).
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("var-a"))

	id, err := repo.FirstVariantID(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "var-a", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryRepository_FirstVariantID_None(t *testing.T) {
	mock := newMock(t)
	repo := NewInventoryRepository(mock)

	mock.ExpectQuery("FROM product_variants").
		WithArgs("prod-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FirstVariantID(context.Background(), "prod-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
