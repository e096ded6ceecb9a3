package domain

import "time"

// Product is the catalog entry a variant belongs to. Its price applies to
// lines that name no variant.
type Product struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PriceAmount   int64  `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
	Active        bool   `json:"active"`
}

// Variant is a purchasable configuration of a product with its own stock.
// When a line names only the product, inventory is tracked against the
// product's first variant: lowest CreatedAt, ties broken by lowest ID.
type Variant struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	SKU               string    `json:"sku"`
	InventoryQuantity int       `json:"inventory_quantity"`
	Available         bool      `json:"available"`
	PriceAmount       int64     `json:"price_amount"`
	PriceCurrency     string    `json:"price_currency"`
	CreatedAt         time.Time `json:"created_at"`
}

// CanFulfil reports whether qty units can be sold right now.
func (v *Variant) CanFulfil(qty int) bool {
	return v.Available && v.InventoryQuantity >= qty
}

// CustomProduct is a user-designed product. It has a price but no stock.
type CustomProduct struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	PriceAmount   int64  `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
}
