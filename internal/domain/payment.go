package domain

import "time"

// Payment methods. Anything other than cash on delivery is an external
// provider tag passed through to the gateway.
const (
	PaymentMethodCOD = "cod"
)

// Payment statuses.
const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusNone      = "none"
)

// Payment is the single payment record of an order.
type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsCOD reports whether the payment is collected on delivery.
func (p *Payment) IsCOD() bool {
	return p.Method == PaymentMethodCOD
}
