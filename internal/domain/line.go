package domain

import "errors"

// Line kinds.
const (
	LineKindCatalog = "catalog"
	LineKindCustom  = "custom"
)

var (
	ErrLineRefEmpty     = errors.New("line must reference a product, a variant or a custom product")
	ErrLineRefAmbiguous = errors.New("line cannot reference both a catalog product and a custom product")
)

// LineRef identifies what a cart line or order item is for. It is either a
// CatalogRef or a CustomRef; the unexported method keeps other packages from
// adding kinds.
type LineRef interface {
	Kind() string
	isLineRef()
}

// CatalogRef points at a catalog product and optionally one of its
// variants. A ref built from a bare variant ID may have an empty ProductID
// until the variant row is loaded.
type CatalogRef struct {
	ProductID string
	VariantID string
}

func (CatalogRef) Kind() string { return LineKindCatalog }
func (CatalogRef) isLineRef()   {}

// HasVariant reports whether a specific variant was chosen.
func (r CatalogRef) HasVariant() bool { return r.VariantID != "" }

// CustomRef points at a user-designed product. Custom lines carry no
// inventory.
type CustomRef struct {
	CustomProductID string
}

func (CustomRef) Kind() string { return LineKindCustom }
func (CustomRef) isLineRef()   {}

// NewLineRef builds a LineRef from the three optional identifiers a request
// or a database row carries.
func NewLineRef(productID, variantID, customProductID string) (LineRef, error) {
	catalog := productID != "" || variantID != ""
	switch {
	case catalog && customProductID != "":
		return nil, ErrLineRefAmbiguous
	case catalog:
		return CatalogRef{ProductID: productID, VariantID: variantID}, nil
	case customProductID != "":
		return CustomRef{CustomProductID: customProductID}, nil
	default:
		return nil, ErrLineRefEmpty
	}
}

// RefColumns flattens ref into nullable column values, in the order
// product_id, variant_id, custom_product_id.
func RefColumns(ref LineRef) (productID, variantID, customProductID *string) {
	switch r := ref.(type) {
	case CatalogRef:
		return nullable(r.ProductID), nullable(r.VariantID), nil
	case CustomRef:
		return nil, nil, nullable(r.CustomProductID)
	}
	return nil, nil, nil
}

// RefFromColumns is the inverse of RefColumns.
func RefFromColumns(productID, variantID, customProductID *string) (LineRef, error) {
	return NewLineRef(deref(productID), deref(variantID), deref(customProductID))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
