package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/service"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/middleware"
	"github.com/utafrali/ordercore/pkg/pagination"
	"github.com/utafrali/ordercore/pkg/validator"
)

const maxBodyBytes = 1 << 20

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	checkout *service.CheckoutService
	logger   *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(checkout *service.CheckoutService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{checkout: checkout, logger: logger}
}

// --- Request DTOs ---

// LineRequest is one line of a client cart snapshot.
type LineRequest struct {
	ProductID       string `json:"product_id" validate:"max=64"`
	VariantID       string `json:"variant_id" validate:"max=64"`
	CustomProductID string `json:"custom_product_id" validate:"max=64"`
	Quantity        int    `json:"quantity" validate:"gt=0,lte=100"`
	PriceAmount     int64  `json:"price_amount" validate:"gte=0"`
	PriceCurrency   string `json:"price_currency" validate:"omitempty,iso4217"`
}

func (l LineRequest) ref() (domain.LineRef, error) {
	ref, err := domain.NewLineRef(l.ProductID, l.VariantID, l.CustomProductID)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	return ref, nil
}

// AddressRequest is a new postal address.
type AddressRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      string `json:"phone" validate:"max=32"`
}

func (a *AddressRequest) input() service.AddressInput {
	return service.AddressInput{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

// CreateOrderRequest is the JSON request body for checkout. Exactly one of
// shipping_address and shipping_address_id is required; billing defaults to
// shipping.
type CreateOrderRequest struct {
	CartID            string          `json:"cart_id" validate:"max=64"`
	CartSnapshot      []LineRequest   `json:"cart_snapshot" validate:"max=100,dive"`
	ShippingAddress   *AddressRequest `json:"shipping_address" validate:"required_without=ShippingAddressID,excluded_with=ShippingAddressID"`
	ShippingAddressID string          `json:"shipping_address_id" validate:"max=64"`
	BillingAddress    *AddressRequest `json:"billing_address" validate:"excluded_with=BillingAddressID"`
	BillingAddressID  string          `json:"billing_address_id" validate:"max=64"`
	PaymentMethod     string          `json:"payment_method" validate:"max=32"`
	DiscountCode      string          `json:"discount_code" validate:"omitempty,discount_code"`
	ContactEmail      string          `json:"contact_email" validate:"omitempty,email"`
}

func (req *CreateOrderRequest) input(userID, fallbackEmail string) (service.CreateOrderInput, error) {
	in := service.CreateOrderInput{
		UserID:        userID,
		CartID:        req.CartID,
		DiscountCode:  req.DiscountCode,
		PaymentMethod: req.PaymentMethod,
		ContactEmail:  req.ContactEmail,
	}
	if in.ContactEmail == "" {
		in.ContactEmail = fallbackEmail
	}

	for _, l := range req.CartSnapshot {
		ref, err := l.ref()
		if err != nil {
			return in, err
		}
		in.Lines = append(in.Lines, service.SnapshotLine{
			Ref:           ref,
			Quantity:      l.Quantity,
			PriceAmount:   l.PriceAmount,
			PriceCurrency: l.PriceCurrency,
		})
	}

	if req.ShippingAddress != nil {
		in.ShippingAddress = req.ShippingAddress.input()
	} else {
		in.ShippingAddress = service.AddressInput{ID: req.ShippingAddressID}
	}

	switch {
	case req.BillingAddress != nil:
		billing := req.BillingAddress.input()
		in.BillingAddress = &billing
	case req.BillingAddressID != "":
		in.BillingAddress = &service.AddressInput{ID: req.BillingAddressID}
	}
	return in, nil
}

// CancelOrderRequest is the JSON request body for canceling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ConfirmPaymentRequest carries a payment provider callback.
type ConfirmPaymentRequest struct {
	ProviderRef string          `json:"provider_ref" validate:"required,max=128"`
	Payload     json.RawMessage `json:"payload"`
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ctx := r.Context()
	in, err := req.input(middleware.UserIDFromContext(ctx), middleware.EmailFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	details, err := h.checkout.CreateOrder(ctx, in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+details.Order.ID)
	httputil.WriteData(w, http.StatusCreated, toOrderDetailsResponse(details))
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromRequest(r)

	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	orders, total, err := h.checkout.ListOrders(r.Context(), middleware.UserIDFromContext(r.Context()), status, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	items := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, toOrderResponse(&orders[i]))
	}
	httputil.WriteData(w, http.StatusOK, pagination.NewResult(items, total, p))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "order id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	details, err := h.checkout.GetOrder(r.Context(), middleware.UserIDFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toOrderDetailsResponse(details))
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "order id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// The body is optional.
	var req CancelOrderRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	order, err := h.checkout.CancelOrder(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toOrderResponse(order))
}

// ConfirmPayment handles POST /api/v1/orders/{id}/payment/confirm
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "order id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ConfirmPaymentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	details, err := h.checkout.ConfirmPayment(r.Context(), id.String(), req.ProviderRef, req.Payload)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, toOrderDetailsResponse(details))
}
