package domain

import (
	"encoding/json"
	"time"
)

// Outbox statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// Order event types.
const (
	EventOrderCreated  = "order.created"
	EventOrderCanceled = "order.canceled"
)

// OutboxEvent is a message written in the same transaction as the state
// change it describes and published to Kafka afterwards.
type OutboxEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
}

// OrderEventItem is one line in an order event payload.
type OrderEventItem struct {
	Kind            string `json:"kind"`
	ProductID       string `json:"product_id,omitempty"`
	VariantID       string `json:"variant_id,omitempty"`
	CustomProductID string `json:"custom_product_id,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPrice       int64  `json:"unit_price"`
}

// OrderEvent is the payload of order.created and order.canceled.
type OrderEvent struct {
	OrderID        string           `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	UserID         string           `json:"user_id"`
	ContactEmail   string           `json:"contact_email,omitempty"`
	Status         string           `json:"status"`
	Items          []OrderEventItem `json:"items"`
	SubtotalAmount int64            `json:"subtotal_amount"`
	DiscountAmount int64            `json:"discount_amount"`
	TotalAmount    int64            `json:"total_amount"`
	Currency       string           `json:"currency"`
	PaymentMethod  string           `json:"payment_method,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// NewOrderEvent snapshots o for an event payload.
func NewOrderEvent(o *Order, paymentMethod string, at time.Time) OrderEvent {
	items := make([]OrderEventItem, 0, len(o.Items))
	for _, it := range o.Items {
		ei := OrderEventItem{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		switch r := it.Ref.(type) {
		case CatalogRef:
			ei.Kind, ei.ProductID, ei.VariantID = LineKindCatalog, r.ProductID, r.VariantID
		case CustomRef:
			ei.Kind, ei.CustomProductID = LineKindCustom, r.CustomProductID
		}
		items = append(items, ei)
	}
	return OrderEvent{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		ContactEmail:   o.ContactEmail,
		Status:         o.Status,
		Items:          items,
		SubtotalAmount: o.SubtotalAmount,
		DiscountAmount: o.DiscountAmount,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		PaymentMethod:  paymentMethod,
		Reason:         o.CanceledReason,
		OccurredAt:     at,
	}
}
