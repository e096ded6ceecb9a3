package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/validator"
)

// DiscountHandler serves the checkout-page discount preview.
type DiscountHandler struct {
	evaluator *service.DiscountEvaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewDiscountHandler creates a discount handler.
func NewDiscountHandler(evaluator *service.DiscountEvaluator, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{
		evaluator: evaluator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidateDiscountRequest is the preview request. OrderAmount is the
// subtotal in minor units.
type ValidateDiscountRequest struct {
	Code        string `json:"code" validate:"required,discount_code"`
	OrderAmount int64  `json:"order_amount" validate:"gte=0"`
}

// ValidateDiscountResponse is an accepted code and what it takes off.
type ValidateDiscountResponse struct {
	Discount      *DiscountResponse `json:"discount"`
	Amount        int64             `json:"amount"`
	AmountDisplay string            `json:"amount_display"`
}

// Validate handles POST /api/v1/discount/validate. It applies the same
// rule as checkout without reserving anything.
func (h *DiscountHandler) Validate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ValidateDiscountRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	eval, err := h.evaluator.Evaluate(r.Context(), req.Code, req.OrderAmount, h.now())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, ValidateDiscountResponse{
		Discount:      toDiscountResponse(eval.Discount),
		Amount:        eval.Amount,
		AmountDisplay: domain.FormatAmount(eval.Amount),
	})
}
