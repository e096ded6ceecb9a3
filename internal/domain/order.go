package domain

import (
	"slices"
	"time"
)

// Order statuses.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCanceled   = "canceled"
	OrderStatusRefunded   = "refunded"
)

// Order is created once per successful checkout. It is never deleted;
// cancellation is a status change.
type Order struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"order_number"`
	UserID            string      `json:"user_id"`
	CartID            string      `json:"cart_id,omitempty"`
	Status            string      `json:"status"`
	Items             []OrderItem `json:"items"`
	SubtotalAmount    int64       `json:"subtotal_amount"`
	DiscountAmount    int64       `json:"discount_amount"`
	SurchargeAmount   int64       `json:"surcharge_amount"`
	TotalAmount       int64       `json:"total_amount"`
	Currency          string      `json:"currency"`
	DiscountID        string      `json:"discount_id,omitempty"`
	DiscountCode      string      `json:"discount_code,omitempty"`
	ContactEmail      string      `json:"contact_email,omitempty"`
	ShippingAddressID string      `json:"shipping_address_id"`
	BillingAddressID  string      `json:"billing_address_id"`
	CanceledReason    string      `json:"canceled_reason,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// OrderItem is a line copied from the cart at order time. StockVariantID is
// the variant whose inventory was decremented, empty when none was.
type OrderItem struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	Ref            LineRef `json:"-"`
	StockVariantID string  `json:"stock_variant_id,omitempty"`
	Quantity       int     `json:"quantity"`
	UnitPrice      int64   `json:"unit_price"`
	Currency       string  `json:"currency"`
}

// LineTotal is UnitPrice × Quantity.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

var allowedTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCanceled:   {},
	OrderStatusRefunded:   {},
}

// AllowedTransitions returns the order state machine.
func AllowedTransitions() map[string][]string {
	out := make(map[string][]string, len(allowedTransitions))
	for k, v := range allowedTransitions {
		out[k] = slices.Clone(v)
	}
	return out
}

// IsValidStatus reports whether s is a known order status.
func IsValidStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the order may move to status next.
func (o *Order) CanTransitionTo(next string) bool {
	return slices.Contains(allowedTransitions[o.Status], next)
}

// IsCancelable reports whether the order can still be canceled.
func (o *Order) IsCancelable() bool {
	return o.CanTransitionTo(OrderStatusCanceled)
}
