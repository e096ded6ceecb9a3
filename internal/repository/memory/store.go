package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
)

type state struct {
	products  map[string]domain.Product
	variants  map[string]domain.Variant
	custom    map[string]domain.CustomProduct
	discounts map[string]domain.Discount
	carts     map[string]domain.Cart
	addresses map[string]domain.Address
	orders    map[string]domain.Order
	payments  map[string]domain.Payment
	outbox    []domain.OutboxEvent
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		variants:  make(map[string]domain.Variant),
		custom:    make(map[string]domain.CustomProduct),
		discounts: make(map[string]domain.Discount),
		carts:     make(map[string]domain.Cart),
		addresses: make(map[string]domain.Address),
		orders:    make(map[string]domain.Order),
		payments:  make(map[string]domain.Payment),
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  maps.Clone(s.products),
		variants:  maps.Clone(s.variants),
		custom:    maps.Clone(s.custom),
		discounts: maps.Clone(s.discounts),
		carts:     make(map[string]domain.Cart, len(s.carts)),
		addresses: maps.Clone(s.addresses),
		orders:    make(map[string]domain.Order, len(s.orders)),
		payments:  maps.Clone(s.payments),
		outbox:    slices.Clone(s.outbox),
	}
	for k, v := range s.carts {
		v.Lines = slices.Clone(v.Lines)
		c.carts[k] = v
	}
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		c.orders[k] = v
	}
	return c
}

// Store keeps every repository in memory. Units of work run one at a time
// and roll back by restoring a snapshot, which makes it a stand-in for the
// PostgreSQL store in tests and local runs.
type Store struct {
	mu     sync.Mutex
	st     *state
	faults map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState(), faults: make(map[string]error)}
}

// Do runs fn with exclusive access to the store. Any error restores the
// state fn started from.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(ctx, s.bind(false)); err != nil {
		s.st = snap
		return err
	}
	return nil
}

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() repository.Repositories {
	return s.bind(true)
}

func (s *Store) bind(auto bool) repository.Repositories {
	r := &repos{s: s, auto: auto}
	return repository.Repositories{
		Catalog:   (*catalogRepo)(r),
		Inventory: (*inventoryRepo)(r),
		Discounts: (*discountRepo)(r),
		Carts:     (*cartRepo)(r),
		Addresses: (*addressRepo)(r),
		Orders:    (*orderRepo)(r),
		Payments:  (*paymentRepo)(r),
		Outbox:    (*outboxRepo)(r),
	}
}

// FailOn makes the named operation (for example "Payments.Create") return
// err until FailOn is called again with a nil error.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// --- Seeding and inspection ---

// PutProduct stores p.
func (s *Store) PutProduct(p domain.Product) { s.locked(func(st *state) { st.products[p.ID] = p }) }

// PutVariant stores v.
func (s *Store) PutVariant(v domain.Variant) { s.locked(func(st *state) { st.variants[v.ID] = v }) }

// PutCustomProduct stores c.
func (s *Store) PutCustomProduct(c domain.CustomProduct) {
	s.locked(func(st *state) { st.custom[c.ID] = c })
}

// PutDiscount stores d.
func (s *Store) PutDiscount(d domain.Discount) { s.locked(func(st *state) { st.discounts[d.ID] = d }) }

// PutCart stores c, recounting its total quantity.
func (s *Store) PutCart(c domain.Cart) {
	c.Lines = slices.Clone(c.Lines)
	c.Recount()
	s.locked(func(st *state) { st.carts[c.ID] = c })
}

// Variant returns a copy of a stored variant.
func (s *Store) Variant(id string) (domain.Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.variants[id]
	return v, ok
}

// Cart returns a copy of a stored cart.
func (s *Store) Cart(id string) (domain.Cart, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.carts[id]
	c.Lines = slices.Clone(c.Lines)
	return c, ok
}

// Orders returns copies of every stored order.
func (s *Store) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	return out
}

// Payments returns copies of every stored payment.
func (s *Store) Payments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.st.payments))
}

// Addresses returns copies of every stored address.
func (s *Store) Addresses() []domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Collect(maps.Values(s.st.addresses))
}

// OutboxEvents returns copies of every stored outbox event in insertion order.
func (s *Store) OutboxEvents() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.outbox)
}

func (s *Store) locked(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}
