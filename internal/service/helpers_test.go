package service

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository/memory"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

const (
	userID      = "user-1"
	otherUserID = "user-2"

	productShirt   = "prod-shirt"
	variantShirtS  = "var-shirt-s"
	variantShirtM  = "var-shirt-m"
	productPoster  = "prod-poster"
	productMug     = "prod-mug"
	customPrint    = "custom-print"
	initialShirtS  = 10
	initialShirtM  = 5
	shirtPrice     = int64(100000)
	posterPrice    = int64(10000)
	mugPrice       = int64(99900)
	customPrice    = int64(2500)
	methodCard     = "card"
	testCurrency   = "INR"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store    *memory.Store
	gateway  *payment.MockGateway
	checkout *CheckoutService
	carts    *CartService
	eval     *DiscountEvaluator
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, AssemblerConfig{CODSurcharge: DefaultCODSurcharge})
}

func newFixtureWithConfig(t *testing.T, cfg AssemblerConfig) *fixture {
	t.Helper()

	store := memory.New()
	seedCatalog(store)

	logger := newTestLogger()
	repos := store.Repositories()
	gateway := payment.NewMockGateway(logger)
	eval := NewDiscountEvaluator(repos.Discounts, logger)
	assembler := NewOrderAssembler(eval, cfg, logger)

	return &fixture{
		store:    store,
		gateway:  gateway,
		checkout: NewCheckoutService(store, repos, assembler, NewInventoryLedger(logger), gateway, logger),
		carts:    NewCartService(store, repos, logger),
		eval:     eval,
	}
}

// seedCatalog stores a shirt with two tracked variants, a poster with no
// variants, a mug with a single variant and a custom print owned by userID.
func seedCatalog(s *memory.Store) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.PutProduct(domain.Product{ID: productShirt, Name: "Shirt", PriceAmount: shirtPrice, PriceCurrency: testCurrency, Active: true})
	s.PutVariant(domain.Variant{
		ID: variantShirtM, ProductID: productShirt, SKU: "SHIRT-M", InventoryQuantity: initialShirtM,
		Available: true, PriceAmount: shirtPrice, PriceCurrency: testCurrency, CreatedAt: t0.Add(time.Hour),
	})
	s.PutVariant(domain.Variant{
		ID: variantShirtS, ProductID: productShirt, SKU: "SHIRT-S", InventoryQuantity: initialShirtS,
		Available: true, PriceAmount: shirtPrice, PriceCurrency: testCurrency, CreatedAt: t0,
	})

	s.PutProduct(domain.Product{ID: productPoster, Name: "Poster", PriceAmount: posterPrice, PriceCurrency: testCurrency, Active: true})

	s.PutProduct(domain.Product{ID: productMug, Name: "Mug", PriceAmount: mugPrice, PriceCurrency: testCurrency, Active: true})
	s.PutVariant(domain.Variant{
		ID: "var-mug", ProductID: productMug, SKU: "MUG", InventoryQuantity: 100,
		Available: true, PriceAmount: mugPrice, PriceCurrency: testCurrency, CreatedAt: t0,
	})

	s.PutCustomProduct(domain.CustomProduct{ID: customPrint, UserID: userID, Name: "My print", PriceAmount: customPrice, PriceCurrency: testCurrency})
}

func putPercentDiscount(s *memory.Store, code string, percent int64, limit *int) {
	s.PutDiscount(domain.Discount{
		ID: "disc-" + code, Code: code, Type: domain.DiscountTypePercentage,
		Value: percent, Active: true, UsageLimit: limit,
	})
}

func intPtr(n int) *int { return &n }

func shippingAddress() AddressInput {
	return AddressInput{
		FullName:   "Asha Rao",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
		Phone:      "+919800000000",
	}
}

func snapshotOrder(method string, lines ...SnapshotLine) CreateOrderInput {
	return CreateOrderInput{
		UserID:          userID,
		Lines:           lines,
		PaymentMethod:   method,
		ContactEmail:    "asha@example.com",
		ShippingAddress: shippingAddress(),
	}
}

func variantLine(variantID string, qty int) SnapshotLine {
	return SnapshotLine{Ref: domain.CatalogRef{VariantID: variantID}, Quantity: qty}
}

func productLine(productID string, qty int) SnapshotLine {
	return SnapshotLine{Ref: domain.CatalogRef{ProductID: productID}, Quantity: qty}
}

func customLine(id string, qty int) SnapshotLine {
	return SnapshotLine{Ref: domain.CustomRef{CustomProductID: id}, Quantity: qty}
}

func (f *fixture) inventory(t *testing.T, variantID string) int {
	t.Helper()
	v, ok := f.store.Variant(variantID)
	require.True(t, ok, "variant %s not seeded", variantID)
	return v.InventoryQuantity
}

func requireAppError(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}
