package payment

import (
	"context"
	"encoding/json"
)

// Provider statuses reported by the gateway.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// InitiateRequest starts a payment for an order.
type InitiateRequest struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Method      string `json:"method"`
}

// InitiateResult is the provider's answer to InitiateRequest.
type InitiateResult struct {
	ProviderRef string `json:"provider_ref"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Status      string `json:"status"`
}

// ConfirmResult is the verified outcome of a provider callback.
type ConfirmResult struct {
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
}

// RefundRequest returns money for a captured payment.
type RefundRequest struct {
	ProviderRef string `json:"provider_ref"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason,omitempty"`
}

// Gateway is the payment provider boundary.
type Gateway interface {
	// Initiate creates the payment at the provider.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// Confirm verifies a provider callback payload.
	Confirm(ctx context.Context, providerRef string, payload json.RawMessage) (*ConfirmResult, error)

	// Refund returns a captured payment.
	Refund(ctx context.Context, req RefundRequest) error
}
