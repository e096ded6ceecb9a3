package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

type repos struct {
	s    *Store
	auto bool
}

// enter returns the live state for op. Standalone repositories take the
// store lock; repositories bound to a unit of work already hold it.
func (r *repos) enter(op string) (*state, func(), error) {
	if r.auto {
		r.s.mu.Lock()
	}
	done := func() {
		if r.auto {
			r.s.mu.Unlock()
		}
	}
	if err := r.s.faults[op]; err != nil {
		done()
		return nil, nil, err
	}
	return r.s.st, done, nil
}

type (
	catalogRepo   repos
	inventoryRepo repos
	discountRepo  repos
	cartRepo      repos
	addressRepo   repos
	orderRepo     repos
	paymentRepo   repos
	outboxRepo    repos
)

// --- Catalog ---

func (r *catalogRepo) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	st, done, err := (*repos)(r).enter("Catalog.GetProduct")
	if err != nil {
		return nil, err
	}
	defer done()
	p, ok := st.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r *catalogRepo) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	st, done, err := (*repos)(r).enter("Catalog.GetVariant")
	if err != nil {
		return nil, err
	}
	defer done()
	v, ok := st.variants[id]
	if !ok {
		return nil, apperrors.NotFound("variant", id)
	}
	return &v, nil
}

func (r *catalogRepo) GetCustomProduct(_ context.Context, id string) (*domain.CustomProduct, error) {
	st, done, err := (*repos)(r).enter("Catalog.GetCustomProduct")
	if err != nil {
		return nil, err
	}
	defer done()
	c, ok := st.custom[id]
	if !ok {
		return nil, apperrors.NotFound("custom product", id)
	}
	return &c, nil
}

// --- Inventory ---

func (r *inventoryRepo) DecrementVariant(_ context.Context, id string, qty int) (int64, error) {
	st, done, err := (*repos)(r).enter("Inventory.DecrementVariant")
	if err != nil {
		return 0, err
	}
	defer done()
	v, ok := st.variants[id]
	if !ok || v.InventoryQuantity < qty {
		return 0, nil
	}
	v.InventoryQuantity -= qty
	st.variants[id] = v
	return 1, nil
}

func (r *inventoryRepo) IncrementVariant(_ context.Context, id string, qty int) (int64, error) {
	st, done, err := (*repos)(r).enter("Inventory.IncrementVariant")
	if err != nil {
		return 0, err
	}
	defer done()
	v, ok := st.variants[id]
	if !ok {
		return 0, nil
	}
	v.InventoryQuantity += qty
	st.variants[id] = v
	return 1, nil
}

func (r *inventoryRepo) VariantExists(_ context.Context, id string) (bool, error) {
	st, done, err := (*repos)(r).enter("Inventory.VariantExists")
	if err != nil {
		return false, err
	}
	defer done()
	_, ok := st.variants[id]
	return ok, nil
}

func (r *inventoryRepo) FirstVariantID(_ context.Context, productID string) (string, error) {
	st, done, err := (*repos)(r).enter("Inventory.FirstVariantID")
	if err != nil {
		return "", err
	}
	defer done()
	var first *domain.Variant
	for _, v := range st.variants {
		if v.ProductID != productID {
			continue
		}
		if first == nil || v.CreatedAt.Before(first.CreatedAt) ||
			(v.CreatedAt.Equal(first.CreatedAt) && v.ID < first.ID) {
			first = &v
		}
	}
	if first == nil {
		return "", apperrors.ErrNotFound
	}
	return first.ID, nil
}

// --- Discounts ---

func (r *discountRepo) GetByCode(_ context.Context, code string) (*domain.Discount, error) {
	st, done, err := (*repos)(r).enter("Discounts.GetByCode")
	if err != nil {
		return nil, err
	}
	defer done()
	return findDiscount(st, code)
}

// GetByCodeForUpdate needs no lock of its own: a unit of work already owns
// the whole store.
func (r *discountRepo) GetByCodeForUpdate(_ context.Context, code string) (*domain.Discount, error) {
	st, done, err := (*repos)(r).enter("Discounts.GetByCodeForUpdate")
	if err != nil {
		return nil, err
	}
	defer done()
	return findDiscount(st, code)
}

func findDiscount(st *state, code string) (*domain.Discount, error) {
	for _, d := range st.discounts {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *discountRepo) CountRedemptions(_ context.Context, discountID string) (int, error) {
	st, done, err := (*repos)(r).enter("Discounts.CountRedemptions")
	if err != nil {
		return 0, err
	}
	defer done()
	n := 0
	for _, o := range st.orders {
		if o.DiscountID == discountID {
			n++
		}
	}
	return n, nil
}

// --- Carts ---

func (r *cartRepo) Create(_ context.Context, c *domain.Cart) error {
	st, done, err := (*repos)(r).enter("Carts.Create")
	if err != nil {
		return err
	}
	defer done()
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	st.carts[c.ID] = cp
	return nil
}

func (r *cartRepo) GetByID(_ context.Context, id string) (*domain.Cart, error) {
	st, done, err := (*repos)(r).enter("Carts.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()
	c, ok := st.carts[id]
	if !ok {
		return nil, apperrors.NotFound("cart", id)
	}
	c.Lines = slices.Clone(c.Lines)
	if c.Lines == nil {
		c.Lines = []domain.CartLine{}
	}
	slices.SortStableFunc(c.Lines, func(a, b domain.CartLine) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return &c, nil
}

func (r *cartRepo) AddLine(_ context.Context, l *domain.CartLine) error {
	st, done, err := (*repos)(r).enter("Carts.AddLine")
	if err != nil {
		return err
	}
	defer done()
	c, ok := st.carts[l.CartID]
	if !ok {
		return apperrors.NotFound("cart", l.CartID)
	}
	c.Lines = append(slices.Clone(c.Lines), *l)
	st.carts[c.ID] = c
	return nil
}

func (r *cartRepo) UpdateLineQuantity(_ context.Context, cartID, lineID string, qty int) error {
	st, done, err := (*repos)(r).enter("Carts.UpdateLineQuantity")
	if err != nil {
		return err
	}
	defer done()
	c, ok := st.carts[cartID]
	if !ok {
		return apperrors.NotFound("cart line", lineID)
	}
	c.Lines = slices.Clone(c.Lines)
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines[i].Quantity = qty
			st.carts[cartID] = c
			return nil
		}
	}
	return apperrors.NotFound("cart line", lineID)
}

func (r *cartRepo) DeleteLine(_ context.Context, cartID, lineID string) error {
	st, done, err := (*repos)(r).enter("Carts.DeleteLine")
	if err != nil {
		return err
	}
	defer done()
	c, ok := st.carts[cartID]
	if !ok {
		return apperrors.NotFound("cart line", lineID)
	}
	before := len(c.Lines)
	c.Lines = slices.DeleteFunc(slices.Clone(c.Lines), func(l domain.CartLine) bool { return l.ID == lineID })
	if len(c.Lines) == before {
		return apperrors.NotFound("cart line", lineID)
	}
	st.carts[cartID] = c
	return nil
}

func (r *cartRepo) RecountTotal(_ context.Context, cartID string) (int, error) {
	st, done, err := (*repos)(r).enter("Carts.RecountTotal")
	if err != nil {
		return 0, err
	}
	defer done()
	c, ok := st.carts[cartID]
	if !ok {
		return 0, apperrors.NotFound("cart", cartID)
	}
	c.Recount()
	c.UpdatedAt = time.Now().UTC()
	st.carts[cartID] = c
	return c.TotalQuantity, nil
}

func (r *cartRepo) Clear(_ context.Context, cartID string) error {
	st, done, err := (*repos)(r).enter("Carts.Clear")
	if err != nil {
		return err
	}
	defer done()
	c, ok := st.carts[cartID]
	if !ok {
		return nil
	}
	c.Lines = nil
	c.TotalQuantity = 0
	c.UpdatedAt = time.Now().UTC()
	st.carts[cartID] = c
	return nil
}

// --- Addresses ---

func (r *addressRepo) Create(_ context.Context, a *domain.Address) error {
	st, done, err := (*repos)(r).enter("Addresses.Create")
	if err != nil {
		return err
	}
	defer done()
	st.addresses[a.ID] = *a
	return nil
}

func (r *addressRepo) GetByID(_ context.Context, id string) (*domain.Address, error) {
	st, done, err := (*repos)(r).enter("Addresses.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()
	a, ok := st.addresses[id]
	if !ok {
		return nil, apperrors.NotFound("address", id)
	}
	return &a, nil
}

// --- Orders ---

func (r *orderRepo) Create(_ context.Context, o *domain.Order) error {
	st, done, err := (*repos)(r).enter("Orders.Create")
	if err != nil {
		return err
	}
	defer done()
	cp := *o
	cp.Items = slices.Clone(o.Items)
	st.orders[o.ID] = cp
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	st, done, err := (*repos)(r).enter("Orders.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()
	return findOrder(st, id)
}

func (r *orderRepo) GetByIDForUpdate(_ context.Context, id string) (*domain.Order, error) {
	st, done, err := (*repos)(r).enter("Orders.GetByIDForUpdate")
	if err != nil {
		return nil, err
	}
	defer done()
	return findOrder(st, id)
}

func findOrder(st *state, id string) (*domain.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return &o, nil
}

func (r *orderRepo) List(_ context.Context, f repository.OrderFilter) ([]domain.Order, int, error) {
	st, done, err := (*repos)(r).enter("Orders.List")
	if err != nil {
		return nil, 0, err
	}
	defer done()

	matched := make([]domain.Order, 0)
	for _, o := range st.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		o.Items = slices.Clone(o.Items)
		matched = append(matched, o)
	}
	slices.SortFunc(matched, func(a, b domain.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	limit := f.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}
	total := len(matched)
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	return matched[offset:min(offset+limit, total)], total, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id, status, reason string) error {
	st, done, err := (*repos)(r).enter("Orders.UpdateStatus")
	if err != nil {
		return err
	}
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return apperrors.NotFound("order", id)
	}
	o.Status, o.CanceledReason, o.UpdatedAt = status, reason, time.Now().UTC()
	st.orders[id] = o
	return nil
}

// --- Payments ---

func (r *paymentRepo) Create(_ context.Context, p *domain.Payment) error {
	st, done, err := (*repos)(r).enter("Payments.Create")
	if err != nil {
		return err
	}
	defer done()
	st.payments[p.ID] = *p
	return nil
}

func (r *paymentRepo) GetByOrderID(_ context.Context, orderID string) (*domain.Payment, error) {
	st, done, err := (*repos)(r).enter("Payments.GetByOrderID")
	if err != nil {
		return nil, err
	}
	defer done()
	for _, p := range st.payments {
		if p.OrderID == orderID {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("payment for order", orderID)
}

func (r *paymentRepo) UpdateStatus(_ context.Context, id, status string) error {
	st, done, err := (*repos)(r).enter("Payments.UpdateStatus")
	if err != nil {
		return err
	}
	defer done()
	p, ok := st.payments[id]
	if !ok {
		return apperrors.NotFound("payment", id)
	}
	p.Status, p.UpdatedAt = status, time.Now().UTC()
	st.payments[id] = p
	return nil
}

func (r *paymentRepo) SetProviderDetails(_ context.Context, id, providerRef, redirectURL string) error {
	st, done, err := (*repos)(r).enter("Payments.SetProviderDetails")
	if err != nil {
		return err
	}
	defer done()
	p, ok := st.payments[id]
	if !ok {
		return apperrors.NotFound("payment", id)
	}
	p.ProviderRef, p.RedirectURL, p.UpdatedAt = providerRef, redirectURL, time.Now().UTC()
	st.payments[id] = p
	return nil
}

// --- Outbox ---

func (r *outboxRepo) Insert(_ context.Context, e *domain.OutboxEvent) error {
	st, done, err := (*repos)(r).enter("Outbox.Insert")
	if err != nil {
		return err
	}
	defer done()
	st.outbox = append(st.outbox, *e)
	return nil
}

func (r *outboxRepo) LockPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	st, done, err := (*repos)(r).enter("Outbox.LockPending")
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]domain.OutboxEvent, 0, limit)
	for _, e := range st.outbox {
		if len(out) == limit {
			break
		}
		if e.Status == domain.OutboxStatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(_ context.Context, id string) error {
	st, done, err := (*repos)(r).enter("Outbox.MarkSent")
	if err != nil {
		return err
	}
	defer done()
	for i := range st.outbox {
		if st.outbox[i].ID == id {
			now := time.Now().UTC()
			st.outbox[i].Status = domain.OutboxStatusSent
			st.outbox[i].Attempts++
			st.outbox[i].SentAt = &now
		}
	}
	return nil
}

func (r *outboxRepo) MarkFailed(_ context.Context, id, lastErr string, maxAttempts int) error {
	st, done, err := (*repos)(r).enter("Outbox.MarkFailed")
	if err != nil {
		return err
	}
	defer done()
	for i := range st.outbox {
		if st.outbox[i].ID == id {
			st.outbox[i].Attempts++
			st.outbox[i].LastError = lastErr
			if st.outbox[i].Attempts >= maxAttempts {
				st.outbox[i].Status = domain.OutboxStatusFailed
			}
		}
	}
	return nil
}
