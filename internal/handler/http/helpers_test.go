package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/idempotency"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository/memory"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/internal/throttle"
	"github.com/utafrali/ordercore/pkg/health"
	"github.com/utafrali/ordercore/pkg/middleware"
)

const (
	mugProduct = "prod-mug"
	mugVariant = "var-mug"
	mugPrice   = int64(99900)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubValidator accepts tokens of the form "<user>" or "<user>:<role>".
func stubValidator(token string) (*middleware.Claims, error) {
	user, role, _ := strings.Cut(token, ":")
	if user == "" || user == "invalid" {
		return nil, errors.New("invalid token")
	}
	if role == "" {
		role = "customer"
	}
	return &middleware.Claims{UserID: user, Role: role, Email: user + "@example.com"}, nil
}

type testServer struct {
	store   *memory.Store
	gateway *payment.MockGateway
	handler http.Handler
}

func newTestServer(t *testing.T, throttleLimit int) *testServer {
	t.Helper()
	logger := testLogger()

	store := memory.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.PutProduct(domain.Product{ID: mugProduct, Name: "Mug", PriceAmount: mugPrice, PriceCurrency: "INR", Active: true})
	store.PutVariant(domain.Variant{
		ID: mugVariant, ProductID: mugProduct, SKU: "MUG", InventoryQuantity: 50,
		Available: true, PriceAmount: mugPrice, PriceCurrency: "INR", CreatedAt: t0,
	})
	store.PutDiscount(domain.Discount{
		ID: "disc-save10", Code: "SAVE10", Type: domain.DiscountTypePercentage, Value: 10, Active: true,
	})

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	repos := store.Repositories()
	gateway := payment.NewMockGateway(logger)
	eval := service.NewDiscountEvaluator(repos.Discounts, logger)
	assembler := service.NewOrderAssembler(eval, service.AssemblerConfig{CODSurcharge: service.DefaultCODSurcharge}, logger)

	deps := RouterDeps{
		Checkout:    service.NewCheckoutService(store, repos, assembler, service.NewInventoryLedger(logger), gateway, logger),
		Carts:       service.NewCartService(store, repos, logger),
		Discounts:   eval,
		Throttle:    throttle.New(client, throttle.Config{Limit: throttleLimit, Window: 10 * time.Minute}, logger),
		Idempotency: idempotency.NewStore(client, time.Hour),
		Health:      health.NewHandler(),
		Validate:    stubValidator,
	}
	return &testServer{store: store, gateway: gateway, handler: NewRouter(deps, logger)}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func address() map[string]any {
	return map[string]any{
		"full_name":   "Asha Rao",
		"line1":       "12 MG Road",
		"city":        "Bengaluru",
		"postal_code": "560001",
		"country":     "IN",
	}
}

func mugOrder(method string) map[string]any {
	body := map[string]any{
		"cart_snapshot": []map[string]any{
			{"product_id": mugProduct, "variant_id": mugVariant, "quantity": 1, "price_amount": mugPrice, "price_currency": "INR"},
		},
		"shipping_address": address(),
	}
	if method != "" {
		body["payment_method"] = method
	}
	return body
}
