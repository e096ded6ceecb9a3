package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// MaxQuantityPerLine caps a single cart line.
const MaxQuantityPerLine = 100

// AddLineInput holds the parameters for adding a line to a cart.
type AddLineInput struct {
	Ref      domain.LineRef
	Quantity int
}

// CartService manages server-side carts. Lines are priced from the catalog
// when they are added.
type CartService struct {
	uow    repository.UnitOfWork
	repos  repository.Repositories
	logger *slog.Logger
	now    func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(uow repository.UnitOfWork, repos repository.Repositories, logger *slog.Logger) *CartService {
	return &CartService{
		uow:    uow,
		repos:  repos,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateCart creates an empty cart for userID.
func (s *CartService) CreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	now := s.now()
	cart := &domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Lines:     []domain.CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Carts.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// GetCart returns a cart owned by userID.
func (s *CartService) GetCart(ctx context.Context, userID, cartID string) (*domain.Cart, error) {
	return ownedCart(ctx, s.repos.Carts, userID, cartID)
}

// AddLine prices ref from the catalog, checks that enough stock is on hand
// and appends the line.
func (s *CartService) AddLine(ctx context.Context, userID, cartID string, in AddLineInput) (*domain.Cart, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return nil, err
	}
	if in.Ref == nil {
		return nil, apperrors.InvalidInput(domain.ErrLineRefEmpty.Error())
	}

	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := ownedCart(ctx, repos.Carts, userID, cartID); err != nil {
			return err
		}

		priced, err := priceFromCatalog(ctx, repos.Catalog, userID, in.Ref)
		if err != nil {
			return err
		}
		if err := checkAvailability(ctx, repos, priced.ref, in.Quantity); err != nil {
			return err
		}

		line := &domain.CartLine{
			ID:            uuid.NewString(),
			CartID:        cartID,
			Ref:           priced.ref,
			Quantity:      in.Quantity,
			PriceAmount:   priced.price,
			PriceCurrency: priced.currency,
			CreatedAt:     s.now(),
		}
		if err := repos.Carts.AddLine(ctx, line); err != nil {
			return fmt.Errorf("add cart line: %w", err)
		}

		cart, err = recount(ctx, repos.Carts, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cart line added",
		slog.String("cart_id", cartID),
		slog.String("kind", in.Ref.Kind()),
		slog.Int("quantity", in.Quantity),
	)
	return cart, nil
}

// UpdateLine sets the quantity of a line. Zero removes it.
func (s *CartService) UpdateLine(ctx context.Context, userID, cartID, lineID string, qty int) (*domain.Cart, error) {
	if qty == 0 {
		return s.RemoveLine(ctx, userID, cartID, lineID)
	}
	if err := checkQuantity(qty); err != nil {
		return nil, err
	}

	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := ownedCart(ctx, repos.Carts, userID, cartID)
		if err != nil {
			return err
		}
		line, ok := findLine(current, lineID)
		if !ok {
			return apperrors.NotFound("cart line", lineID)
		}
		if err := checkAvailability(ctx, repos, line.Ref, qty); err != nil {
			return err
		}
		if err := repos.Carts.UpdateLineQuantity(ctx, cartID, lineID, qty); err != nil {
			return err
		}
		cart, err = recount(ctx, repos.Carts, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveLine deletes a line from the cart.
func (s *CartService) RemoveLine(ctx context.Context, userID, cartID, lineID string) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := ownedCart(ctx, repos.Carts, userID, cartID); err != nil {
			return err
		}
		if err := repos.Carts.DeleteLine(ctx, cartID, lineID); err != nil {
			return err
		}
		var err error
		cart, err = recount(ctx, repos.Carts, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func ownedCart(ctx context.Context, carts repository.CartRepository, userID, cartID string) (*domain.Cart, error) {
	cart, err := carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !cart.OwnedBy(userID) {
		return nil, apperrors.NotFound("cart", cartID)
	}
	return cart, nil
}

func recount(ctx context.Context, carts repository.CartRepository, cartID string) (*domain.Cart, error) {
	if _, err := carts.RecountTotal(ctx, cartID); err != nil {
		return nil, fmt.Errorf("recount cart: %w", err)
	}
	return carts.GetByID(ctx, cartID)
}

func findLine(cart *domain.Cart, lineID string) (domain.CartLine, bool) {
	for _, l := range cart.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}

func checkQuantity(qty int) error {
	if qty < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}
	if qty > MaxQuantityPerLine {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerLine))
	}
	return nil
}

// checkAvailability reports INSUFFICIENT_STOCK when the variant the line
// would draw from holds fewer than qty units. Untracked lines always pass.
func checkAvailability(ctx context.Context, repos repository.Repositories, ref domain.LineRef, qty int) error {
	cat, ok := ref.(domain.CatalogRef)
	if !ok {
		return nil
	}
	variantID := cat.VariantID
	if variantID == "" {
		id, err := repos.Inventory.FirstVariantID(ctx, cat.ProductID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		variantID = id
	}

	v, err := repos.Catalog.GetVariant(ctx, variantID)
	if err != nil {
		return err
	}
	if !v.CanFulfil(qty) {
		return apperrors.BusinessRule(apperrors.CodeInsufficientStock,
			fmt.Sprintf("Only %d units of %s are available", max(v.InventoryQuantity, 0), v.SKU))
	}
	return nil
}
