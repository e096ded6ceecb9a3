package domain

import (
	"strings"
	"time"
)

// Discount types.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// Rejection reasons, also used as metric labels.
const (
	DiscountReasonNotFound   = "not_found"
	DiscountReasonInactive   = "inactive"
	DiscountReasonNotStarted = "not_started"
	DiscountReasonExpired    = "expired"
	DiscountReasonMinOrder   = "min_order"
	DiscountReasonUsageLimit = "usage_limit"
)

// Discount is a redeemable code. For percentage discounts Value is a whole
// percent (10 = 10%); for fixed discounts it is in minor units. Usage is
// not stored: it is the number of orders, canceled ones included, whose
// applied discount is this one.
type Discount struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          int64      `json:"value"`
	Active         bool       `json:"active"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	MinOrderAmount *int64     `json:"min_order_amount,omitempty"`
	UsageLimit     *int       `json:"usage_limit,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DiscountRejection explains why a code cannot be applied. Message is safe
// to show to the shopper.
type DiscountRejection struct {
	Reason  string
	Message string
}

func (r *DiscountRejection) Error() string { return r.Message }

// NormalizeDiscountCode trims and upper-cases a code.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidDiscountType reports whether t is a known discount type.
func IsValidDiscountType(t string) bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// Apply checks the discount against subtotal, the current redemption count
// and now, and returns the amount to take off. The amount never exceeds
// subtotal. Preview and checkout both go through here.
func (d *Discount) Apply(subtotal int64, redemptions int, now time.Time) (int64, error) {
	switch {
	case !d.Active:
		return 0, &DiscountRejection{DiscountReasonInactive, "Discount code is not active"}
	case d.StartsAt != nil && now.Before(*d.StartsAt):
		return 0, &DiscountRejection{DiscountReasonNotStarted, "Discount code is not yet valid"}
	case d.EndsAt != nil && now.After(*d.EndsAt):
		return 0, &DiscountRejection{DiscountReasonExpired, "Discount code has expired"}
	case d.MinOrderAmount != nil && subtotal < *d.MinOrderAmount:
		return 0, &DiscountRejection{DiscountReasonMinOrder,
			"Order total must be at least " + FormatAmount(*d.MinOrderAmount) + " to use this code"}
	case d.UsageLimit != nil && redemptions >= *d.UsageLimit:
		return 0, &DiscountRejection{DiscountReasonUsageLimit, "Discount code usage limit has been reached"}
	}

	return d.amount(subtotal), nil
}

func (d *Discount) amount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var amt int64
	switch d.Type {
	case DiscountTypePercentage:
		amt = subtotal * d.Value / 100
	case DiscountTypeFixed:
		amt = d.Value
	}
	return max(0, min(amt, subtotal))
}

// UnknownDiscount is the rejection for a code that does not exist.
func UnknownDiscount() *DiscountRejection {
	return &DiscountRejection{DiscountReasonNotFound, "Discount code is invalid"}
}
