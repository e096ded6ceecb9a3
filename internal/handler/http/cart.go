package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/middleware"
	"github.com/utafrali/ordercore/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	carts  *service.CartService
	logger *slog.Logger
}

// NewCartHandler creates a cart handler.
func NewCartHandler(carts *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// AddLineRequest adds a product, variant or custom product to a cart.
type AddLineRequest struct {
	ProductID       string `json:"product_id" validate:"max=64"`
	VariantID       string `json:"variant_id" validate:"max=64"`
	CustomProductID string `json:"custom_product_id" validate:"max=64"`
	Quantity        int    `json:"quantity" validate:"gt=0,lte=100"`
}

// UpdateLineRequest sets a line's quantity; zero removes it.
type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"gte=0,lte=100"`
}

// CreateCart handles POST /api/v1/carts
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.CreateCart(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, toCartResponse(cart))
}

// GetCart handles GET /api/v1/carts/{id}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "cart id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), middleware.UserIDFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toCartResponse(cart))
}

// AddLine handles POST /api/v1/carts/{id}/lines
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, "cart id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req AddLineRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	ref, err := LineRequest{
		ProductID:       req.ProductID,
		VariantID:       req.VariantID,
		CustomProductID: req.CustomProductID,
	}.ref()
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	cart, err := h.carts.AddLine(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), service.AddLineInput{
		Ref:      ref,
		Quantity: req.Quantity,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, toCartResponse(cart))
}

// UpdateLine handles PATCH /api/v1/carts/{id}/lines/{lineID}
func (h *CartHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	cartID, ok := httputil.ParseUUID(w, "cart id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	lineID, ok := httputil.ParseUUID(w, "line id", chi.URLParam(r, "lineID"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req UpdateLineRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.carts.UpdateLine(r.Context(), middleware.UserIDFromContext(r.Context()), cartID.String(), lineID.String(), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toCartResponse(cart))
}

// RemoveLine handles DELETE /api/v1/carts/{id}/lines/{lineID}
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	cartID, ok := httputil.ParseUUID(w, "cart id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	lineID, ok := httputil.ParseUUID(w, "line id", chi.URLParam(r, "lineID"))
	if !ok {
		return
	}

	cart, err := h.carts.RemoveLine(r.Context(), middleware.UserIDFromContext(r.Context()), cartID.String(), lineID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, toCartResponse(cart))
}
