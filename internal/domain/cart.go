package domain

import "time"

// Cart is a user's pending purchase.
type Cart struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Lines         []CartLine `json:"lines"`
	TotalQuantity int        `json:"total_quantity"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CartLine holds a quantity and the unit price captured when it was added.
type CartLine struct {
	ID            string    `json:"id"`
	CartID        string    `json:"cart_id"`
	Ref           LineRef   `json:"-"`
	Quantity      int       `json:"quantity"`
	PriceAmount   int64     `json:"price_amount"`
	PriceCurrency string    `json:"price_currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// Recount sets TotalQuantity to the sum of line quantities.
func (c *Cart) Recount() {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	c.TotalQuantity = total
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// OwnedBy reports whether userID owns the cart.
func (c *Cart) OwnedBy(userID string) bool {
	return c.UserID == userID
}
