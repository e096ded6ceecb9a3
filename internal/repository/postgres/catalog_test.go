package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func TestCatalogRepository_GetProduct(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogRepository(mock)

	mock.ExpectQuery("FROM products").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price_amount", "price_currency", "active"}).
			AddRow("prod-1", "Mug", int64(49900), "INR", true))

	p, err := repo.GetProduct(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)
	assert.Equal(t, int64(49900), p.PriceAmount)
	assert.True(t, p.Active)
}

func TestCatalogRepository_GetProduct_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogRepository(mock)

	mock.ExpectQuery("FROM products").WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetProduct(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCatalogRepository_GetVariant(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogRepository(mock)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM product_variants").
		WithArgs("var-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "sku", "inventory_quantity", "available", "price_amount", "price_currency", "created_at",
		}).AddRow("var-1", "prod-1", "MUG-RED", 7, true, int64(49900), "INR", created))

	v, err := repo.GetVariant(context.Background(), "var-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", v.ProductID)
	assert.Equal(t, 7, v.InventoryQuantity)
	assert.Equal(t, created, v.CreatedAt)
}

func TestCatalogRepository_GetCustomProduct_DBError(t *testing.T) {
	mock := newMock(t)
	repo := NewCatalogRepository(mock)

	mock.ExpectQuery("FROM custom_products").WithArgs("cp-1").WillReturnError(errors.New("timeout"))

	_, err := repo.GetCustomProduct(context.Background(), "cp-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "get custom product")
}
