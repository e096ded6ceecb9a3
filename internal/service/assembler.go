package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// Snapshot pricing policies.
const (
	PricingCatalog = "catalog"
	PricingClient  = "client"
)

// DefaultCODSurcharge is 100.00 in minor units.
const DefaultCODSurcharge int64 = 10000

// AssemblerConfig holds pricing settings.
type AssemblerConfig struct {
	CODSurcharge    int64
	SnapshotPricing string
}

// SnapshotLine is a cart line sent by the client.
type SnapshotLine struct {
	Ref           domain.LineRef
	Quantity      int
	PriceAmount   int64
	PriceCurrency string
}

// AssembleInput is everything the assembler needs to price an order.
type AssembleInput struct {
	UserID        string
	CartID        string
	Snapshot      []SnapshotLine
	DiscountCode  string
	PaymentMethod string
}

// OrderDraft is a priced order that has not been persisted yet.
type OrderDraft struct {
	Order    *domain.Order
	Discount *domain.Discount
}

// OrderAssembler builds a priced order from a cart or a client snapshot.
type OrderAssembler struct {
	discounts *DiscountEvaluator
	cfg       AssemblerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderAssembler creates an order assembler.
func NewOrderAssembler(discounts *DiscountEvaluator, cfg AssemblerConfig, logger *slog.Logger) *OrderAssembler {
	if cfg.SnapshotPricing == "" {
		cfg.SnapshotPricing = PricingCatalog
	}
	return &OrderAssembler{
		discounts: discounts,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type pricedLine struct {
	ref      domain.LineRef
	quantity int
	price    int64
	currency string
}

// Assemble prices the order inside the caller's unit of work. A discount
// code is checked under a row lock that is held until the caller commits.
func (a *OrderAssembler) Assemble(ctx context.Context, repos repository.Repositories, in AssembleInput) (*OrderDraft, error) {
	lines, err := a.collectLines(ctx, repos, in)
	if err != nil {
		return nil, err
	}

	currency := lines[0].currency
	var subtotal int64
	for _, l := range lines {
		if l.currency != currency {
			return nil, apperrors.InvalidInput(fmt.Sprintf("all lines must be priced in %s, found %s", currency, l.currency))
		}
		subtotal += l.price * int64(l.quantity)
	}

	now := a.now()
	orderNumber, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	order := &domain.Order{
		ID:             uuid.NewString(),
		OrderNumber:    orderNumber.String(),
		UserID:         in.UserID,
		CartID:         in.CartID,
		Status:         domain.OrderStatusPending,
		SubtotalAmount: subtotal,
		Currency:       currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	draft := &OrderDraft{Order: order}
	if in.DiscountCode != "" {
		eval, err := a.discounts.EvaluateForUpdate(ctx, repos.Discounts, in.DiscountCode, subtotal, now)
		if err != nil {
			return nil, err
		}
		draft.Discount = eval.Discount
		order.DiscountID = eval.Discount.ID
		order.DiscountCode = eval.Discount.Code
		order.DiscountAmount = eval.Amount
	}

	if in.PaymentMethod == domain.PaymentMethodCOD {
		order.SurchargeAmount = a.cfg.CODSurcharge
	}
	order.TotalAmount = max(0, subtotal-order.DiscountAmount) + order.SurchargeAmount

	order.Items = make([]domain.OrderItem, len(lines))
	for i, l := range lines {
		order.Items[i] = domain.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Ref:       l.ref,
			Quantity:  l.quantity,
			UnitPrice: l.price,
			Currency:  l.currency,
		}
	}

	return draft, nil
}

// collectLines returns the persisted cart lines when there are any and the
// client snapshot otherwise.
func (a *OrderAssembler) collectLines(ctx context.Context, repos repository.Repositories, in AssembleInput) ([]pricedLine, error) {
	if in.CartID != "" {
		cart, err := repos.Carts.GetByID(ctx, in.CartID)
		if err != nil {
			return nil, err
		}
		if !cart.OwnedBy(in.UserID) {
			return nil, apperrors.Forbidden("cart belongs to another user")
		}
		if !cart.IsEmpty() {
			lines := make([]pricedLine, len(cart.Lines))
			for i, l := range cart.Lines {
				lines[i] = pricedLine{ref: l.Ref, quantity: l.Quantity, price: l.PriceAmount, currency: domain.NormalizeCurrency(l.PriceCurrency)}
			}
			return lines, nil
		}
	}

	if len(in.Snapshot) == 0 {
		return nil, apperrors.BusinessRule(apperrors.CodeCartEmpty, "Cart is empty")
	}

	lines := make([]pricedLine, len(in.Snapshot))
	for i, s := range in.Snapshot {
		if s.Quantity < 1 {
			return nil, apperrors.InvalidInput("line quantity must be at least 1")
		}
		if a.cfg.SnapshotPricing == PricingClient {
			lines[i] = pricedLine{ref: s.Ref, quantity: s.Quantity, price: s.PriceAmount, currency: domain.NormalizeCurrency(s.PriceCurrency)}
			continue
		}
		l, err := priceFromCatalog(ctx, repos.Catalog, in.UserID, s.Ref)
		if err != nil {
			return nil, err
		}
		l.quantity = s.Quantity
		lines[i] = l
	}
	return lines, nil
}

// priceFromCatalog resolves the current price of ref. Variant refs are
// completed with their product ID.
func priceFromCatalog(ctx context.Context, catalog repository.CatalogRepository, userID string, ref domain.LineRef) (pricedLine, error) {
	switch r := ref.(type) {
	case domain.CatalogRef:
		if r.HasVariant() {
			v, err := catalog.GetVariant(ctx, r.VariantID)
			if err != nil {
				return pricedLine{}, err
			}
			if r.ProductID != "" && r.ProductID != v.ProductID {
				return pricedLine{}, apperrors.InvalidInput(fmt.Sprintf("variant %s does not belong to product %s", v.ID, r.ProductID))
			}
			return pricedLine{
				ref:      domain.CatalogRef{ProductID: v.ProductID, VariantID: v.ID},
				price:    v.PriceAmount,
				currency: domain.NormalizeCurrency(v.PriceCurrency),
			}, nil
		}
		p, err := catalog.GetProduct(ctx, r.ProductID)
		if err != nil {
			return pricedLine{}, err
		}
		return pricedLine{ref: r, price: p.PriceAmount, currency: domain.NormalizeCurrency(p.PriceCurrency)}, nil

	case domain.CustomRef:
		c, err := catalog.GetCustomProduct(ctx, r.CustomProductID)
		if err != nil {
			return pricedLine{}, err
		}
		if c.UserID != userID {
			return pricedLine{}, apperrors.Forbidden("custom product belongs to another user")
		}
		return pricedLine{ref: r, price: c.PriceAmount, currency: domain.NormalizeCurrency(c.PriceCurrency)}, nil
	}
	return pricedLine{}, apperrors.InvalidInput(domain.ErrLineRefEmpty.Error())
}
