package http

import (
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/service"
)

// Money is an amount in minor units plus its display form.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

func money(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency, Display: domain.FormatAmount(amount)}
}

// LineResponse is a cart line or order item.
type LineResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	ProductID       string `json:"product_id,omitempty"`
	VariantID       string `json:"variant_id,omitempty"`
	CustomProductID string `json:"custom_product_id,omitempty"`
	StockVariantID  string `json:"stock_variant_id,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       Money  `json:"unit_price"`
	LineTotal       Money  `json:"line_total"`
}

func lineRef(resp *LineResponse, ref domain.LineRef) {
	switch r := ref.(type) {
	case domain.CatalogRef:
		resp.Kind, resp.ProductID, resp.VariantID = domain.LineKindCatalog, r.ProductID, r.VariantID
	case domain.CustomRef:
		resp.Kind, resp.CustomProductID = domain.LineKindCustom, r.CustomProductID
	}
}

// DiscountResponse describes an applied or previewed discount.
type DiscountResponse struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          int64      `json:"value"`
	MinOrderAmount *int64     `json:"min_order_amount,omitempty"`
	UsageLimit     *int       `json:"usage_limit,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
}

func toDiscountResponse(d *domain.Discount) *DiscountResponse {
	if d == nil {
		return nil
	}
	return &DiscountResponse{
		ID:             d.ID,
		Code:           d.Code,
		Type:           d.Type,
		Value:          d.Value,
		MinOrderAmount: d.MinOrderAmount,
		UsageLimit:     d.UsageLimit,
		EndsAt:         d.EndsAt,
	}
}

// OrderResponse is the checkout result and the order detail view.
type OrderResponse struct {
	ID              string            `json:"id"`
	OrderNumber     string            `json:"order_number"`
	Status          string            `json:"status"`
	Items           []LineResponse    `json:"items"`
	Subtotal        Money             `json:"subtotal"`
	DiscountAmount  Money             `json:"discount_amount"`
	Surcharge       Money             `json:"surcharge"`
	TotalAmount     int64             `json:"total_amount"`
	TotalCurrency   string            `json:"total_currency"`
	TotalDisplay    string            `json:"total_display"`
	Discount        *DiscountResponse `json:"discount,omitempty"`
	Payment         *domain.Payment   `json:"payment,omitempty"`
	ShippingAddress *domain.Address   `json:"shipping_address,omitempty"`
	BillingAddress  *domain.Address   `json:"billing_address,omitempty"`
	ContactEmail    string            `json:"contact_email,omitempty"`
	CanceledReason  string            `json:"canceled_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	items := make([]LineResponse, 0, len(o.Items))
	for _, it := range o.Items {
		lr := LineResponse{
			ID:             it.ID,
			StockVariantID: it.StockVariantID,
			Quantity:       it.Quantity,
			UnitPrice:      money(it.UnitPrice, it.Currency),
			LineTotal:      money(it.LineTotal(), it.Currency),
		}
		lineRef(&lr, it.Ref)
		items = append(items, lr)
	}
	return OrderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		Items:          items,
		Subtotal:       money(o.SubtotalAmount, o.Currency),
		DiscountAmount: money(o.DiscountAmount, o.Currency),
		Surcharge:      money(o.SurchargeAmount, o.Currency),
		TotalAmount:    o.TotalAmount,
		TotalCurrency:  o.Currency,
		TotalDisplay:   domain.FormatAmount(o.TotalAmount),
		ContactEmail:   o.ContactEmail,
		CanceledReason: o.CanceledReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func toOrderDetailsResponse(d *service.OrderDetails) OrderResponse {
	resp := toOrderResponse(d.Order)
	resp.Payment = d.Payment
	resp.ShippingAddress = d.ShippingAddress
	resp.BillingAddress = d.BillingAddress
	resp.Discount = toDiscountResponse(d.Discount)
	return resp
}

// CartResponse is a cart with its lines.
type CartResponse struct {
	ID            string         `json:"id"`
	Lines         []LineResponse `json:"lines"`
	TotalQuantity int            `json:"total_quantity"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toCartResponse(c *domain.Cart) CartResponse {
	lines := make([]LineResponse, 0, len(c.Lines))
	for _, l := range c.Lines {
		lr := LineResponse{
			ID:        l.ID,
			Quantity:  l.Quantity,
			UnitPrice: money(l.PriceAmount, l.PriceCurrency),
			LineTotal: money(l.PriceAmount*int64(l.Quantity), l.PriceCurrency),
		}
		lineRef(&lr, l.Ref)
		lines = append(lines, lr)
	}
	return CartResponse{ID: c.ID, Lines: lines, TotalQuantity: c.TotalQuantity, UpdatedAt: c.UpdatedAt}
}
