// Package notification sends the order confirmation email. It runs off the
// order.created topic so a slow or failing email provider never affects
// checkout.
package notification

import (
	"context"
	"log/slog"

	"github.com/utafrali/ordercore/internal/domain"
)

// OrderConfirmation is the content of a confirmation email.
type OrderConfirmation struct {
	To             string                  `json:"to"`
	OrderID        string                  `json:"order_id"`
	OrderNumber    string                  `json:"order_number"`
	Items          []domain.OrderEventItem `json:"items"`
	SubtotalAmount int64                   `json:"subtotal_amount"`
	DiscountAmount int64                   `json:"discount_amount"`
	TotalAmount    int64                   `json:"total_amount"`
	Currency       string                  `json:"currency"`
	TotalDisplay   string                  `json:"total_display"`
	PaymentMethod  string                  `json:"payment_method"`
}

// NewOrderConfirmation builds the email for an order.created payload.
func NewOrderConfirmation(e domain.OrderEvent) OrderConfirmation {
	return OrderConfirmation{
		To:             e.ContactEmail,
		OrderID:        e.OrderID,
		OrderNumber:    e.OrderNumber,
		Items:          e.Items,
		SubtotalAmount: e.SubtotalAmount,
		DiscountAmount: e.DiscountAmount,
		TotalAmount:    e.TotalAmount,
		Currency:       e.Currency,
		TotalDisplay:   domain.FormatAmount(e.TotalAmount) + " " + e.Currency,
		PaymentMethod:  e.PaymentMethod,
	}
}

// EmailSender delivers transactional email.
type EmailSender interface {
	SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error
}

// LogSender writes emails to the log. It is used when no email API is
// configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	s.logger.InfoContext(ctx, "order confirmation email",
		slog.String("to", msg.To),
		slog.String("order_number", msg.OrderNumber),
		slog.String("total", msg.TotalDisplay),
		slog.Int("items", len(msg.Items)),
	)
	return nil
}
