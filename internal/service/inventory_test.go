package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// --- Mock Inventory Repository ---

type mockInventoryRepository struct {
	mock.Mock
}

func (m *mockInventoryRepository) DecrementVariant(ctx context.Context, variantID string, qty int) (int64, error) {
	args := m.Called(ctx, variantID, qty)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockInventoryRepository) IncrementVariant(ctx context.Context, variantID string, qty int) (int64, error) {
	args := m.Called(ctx, variantID, qty)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockInventoryRepository) VariantExists(ctx context.Context, variantID string) (bool, error) {
	args := m.Called(ctx, variantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockInventoryRepository) FirstVariantID(ctx context.Context, productID string) (string, error) {
	args := m.Called(ctx, productID)
	return args.String(0), args.Error(1)
}

// --- Decrement ---

func TestInventoryLedger_Decrement_Variant(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("DecrementVariant", mock.Anything, "v-1", 2).Return(int64(1), nil)

	id, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv,
		domain.CatalogRef{ProductID: "p-1", VariantID: "v-1"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "v-1", id)
	inv.AssertExpectations(t)
	inv.AssertNotCalled(t, "FirstVariantID", mock.Anything, mock.Anything)
}

func TestInventoryLedger_Decrement_FirstVariant(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("FirstVariantID", mock.Anything, "p-1").Return("v-first", nil)
	inv.On("DecrementVariant", mock.Anything, "v-first", 1).Return(int64(1), nil)

	id, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CatalogRef{ProductID: "p-1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "v-first", id)
	inv.AssertExpectations(t)
}

func TestInventoryLedger_Decrement_ProductWithoutVariants(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("FirstVariantID", mock.Anything, "p-1").Return("", apperrors.ErrNotFound)

	id, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CatalogRef{ProductID: "p-1"}, 1)
	require.NoError(t, err)
	assert.Empty(t, id)
	inv.AssertNotCalled(t, "DecrementVariant", mock.Anything, mock.Anything, mock.Anything)
}

func TestInventoryLedger_Decrement_CustomLine(t *testing.T) {
	inv := new(mockInventoryRepository)

	id, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CustomRef{CustomProductID: "c-1"}, 5)
	require.NoError(t, err)
	assert.Empty(t, id)
	inv.AssertExpectations(t)
}

func TestInventoryLedger_Decrement_LostRace(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("DecrementVariant", mock.Anything, "v-1", 3).Return(int64(0), nil)
	inv.On("VariantExists", mock.Anything, "v-1").Return(true, nil)

	_, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CatalogRef{VariantID: "v-1"}, 3)
	requireAppError(t, err, apperrors.CodeConcurrency)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
}

func TestInventoryLedger_Decrement_MissingVariant(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("DecrementVariant", mock.Anything, "v-gone", 1).Return(int64(0), nil)
	inv.On("VariantExists", mock.Anything, "v-gone").Return(false, nil)

	_, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CatalogRef{VariantID: "v-gone"}, 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestInventoryLedger_Decrement_StoreError(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("FirstVariantID", mock.Anything, "p-1").Return("", errors.New("connection reset"))

	_, err := NewInventoryLedger(newTestLogger()).Decrement(context.Background(), inv, domain.CatalogRef{ProductID: "p-1"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve first variant")
}

// --- DecrementItems / IncrementItems ---

func calledMethods(inv *mockInventoryRepository) []string {
	out := make([]string, 0, len(inv.Calls))
	for _, c := range inv.Calls {
		out = append(out, c.Method+" "+c.Arguments.String(1))
	}
	return out
}

func TestInventoryLedger_DecrementItems_LocksInVariantOrder(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("FirstVariantID", mock.Anything, "p-1").Return("v-a", nil)
	inv.On("DecrementVariant", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("int")).Return(int64(1), nil)

	items := []domain.OrderItem{
		{Ref: domain.CatalogRef{ProductID: "p-2", VariantID: "v-c"}, Quantity: 1},
		{Ref: domain.CustomRef{CustomProductID: "c-1"}, Quantity: 1},
		{Ref: domain.CatalogRef{ProductID: "p-1"}, Quantity: 2},
		{Ref: domain.CatalogRef{ProductID: "p-3", VariantID: "v-b"}, Quantity: 3},
	}
	err := NewInventoryLedger(newTestLogger()).DecrementItems(context.Background(), inv, items)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"FirstVariantID p-1",
		"DecrementVariant v-a",
		"DecrementVariant v-b",
		"DecrementVariant v-c",
	}, calledMethods(inv))
	assert.Equal(t, "v-c", items[0].StockVariantID)
	assert.Empty(t, items[1].StockVariantID)
	assert.Equal(t, "v-a", items[2].StockVariantID)
	assert.Equal(t, "v-b", items[3].StockVariantID)
}

func TestInventoryLedger_DecrementItems_StopsAtFirstShortVariant(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("DecrementVariant", mock.Anything, "v-a", 1).Return(int64(0), nil)
	inv.On("VariantExists", mock.Anything, "v-a").Return(true, nil)

	items := []domain.OrderItem{
		{Ref: domain.CatalogRef{VariantID: "v-b"}, Quantity: 1},
		{Ref: domain.CatalogRef{VariantID: "v-a"}, Quantity: 1},
	}
	err := NewInventoryLedger(newTestLogger()).DecrementItems(context.Background(), inv, items)
	requireAppError(t, err, apperrors.CodeConcurrency)
	inv.AssertNotCalled(t, "DecrementVariant", mock.Anything, "v-b", mock.Anything)
}

func TestInventoryLedger_IncrementItems_LocksInVariantOrder(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("IncrementVariant", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("int")).Return(int64(1), nil)

	items := []domain.OrderItem{
		{StockVariantID: "v-b", Quantity: 1},
		{Quantity: 5},
		{StockVariantID: "v-a", Quantity: 2},
	}
	err := NewInventoryLedger(newTestLogger()).IncrementItems(context.Background(), inv, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"IncrementVariant v-a", "IncrementVariant v-b"}, calledMethods(inv))
}

// --- Increment ---

func TestInventoryLedger_Increment(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("IncrementVariant", mock.Anything, "v-1", 4).Return(int64(1), nil)

	err := NewInventoryLedger(newTestLogger()).Increment(context.Background(), inv, domain.OrderItem{StockVariantID: "v-1", Quantity: 4})
	require.NoError(t, err)
	inv.AssertExpectations(t)
}

func TestInventoryLedger_Increment_UntrackedItem(t *testing.T) {
	inv := new(mockInventoryRepository)

	err := NewInventoryLedger(newTestLogger()).Increment(context.Background(), inv, domain.OrderItem{Quantity: 4})
	require.NoError(t, err)
	inv.AssertNotCalled(t, "IncrementVariant", mock.Anything, mock.Anything, mock.Anything)
}

func TestInventoryLedger_Increment_VariantRemoved(t *testing.T) {
	inv := new(mockInventoryRepository)
	inv.On("IncrementVariant", mock.Anything, "v-gone", 1).Return(int64(0), nil)

	err := NewInventoryLedger(newTestLogger()).Increment(context.Background(), inv, domain.OrderItem{StockVariantID: "v-gone", Quantity: 1})
	assert.NoError(t, err)
}
