package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// InventoryLedger turns order lines into stock movements. It never opens a
// transaction; callers pass the repository bound to theirs.
type InventoryLedger struct {
	logger *slog.Logger
}

// NewInventoryLedger creates an inventory ledger.
func NewInventoryLedger(logger *slog.Logger) *InventoryLedger {
	return &InventoryLedger{logger: logger}
}

// Resolve returns the variant whose stock backs ref. Custom lines and
// products without variants are not tracked and resolve to an empty ID.
func (l *InventoryLedger) Resolve(ctx context.Context, inv repository.InventoryRepository, ref domain.LineRef) (string, error) {
	cat, ok := ref.(domain.CatalogRef)
	if !ok {
		return "", nil
	}
	if cat.VariantID != "" {
		return cat.VariantID, nil
	}

	id, err := inv.FirstVariantID(ctx, cat.ProductID)
	if errors.Is(err, apperrors.ErrNotFound) {
		l.logger.DebugContext(ctx, "product has no variants, stock not tracked",
			slog.String("product_id", cat.ProductID),
		)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve first variant: %w", err)
	}
	return id, nil
}

// Decrement takes qty units for ref and returns the variant it took them
// from, empty when the line is untracked.
func (l *InventoryLedger) Decrement(ctx context.Context, inv repository.InventoryRepository, ref domain.LineRef, qty int) (string, error) {
	variantID, err := l.Resolve(ctx, inv, ref)
	if err != nil || variantID == "" {
		return "", err
	}
	if err := l.take(ctx, inv, variantID, qty); err != nil {
		return "", err
	}
	return variantID, nil
}

// DecrementItems sets StockVariantID on every item and then takes stock in
// variant ID order, so checkouts touching the same variants lock their
// rows in the same sequence.
func (l *InventoryLedger) DecrementItems(ctx context.Context, inv repository.InventoryRepository, items []domain.OrderItem) error {
	for i := range items {
		id, err := l.Resolve(ctx, inv, items[i].Ref)
		if err != nil {
			return err
		}
		items[i].StockVariantID = id
	}
	for _, i := range lockOrder(items) {
		if err := l.take(ctx, inv, items[i].StockVariantID, items[i].Quantity); err != nil {
			return err
		}
	}
	return nil
}

// IncrementItems restores every item in variant ID order.
func (l *InventoryLedger) IncrementItems(ctx context.Context, inv repository.InventoryRepository, items []domain.OrderItem) error {
	for _, i := range lockOrder(items) {
		if err := l.Increment(ctx, inv, items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *InventoryLedger) take(ctx context.Context, inv repository.InventoryRepository, variantID string, qty int) error {
	n, err := inv.DecrementVariant(ctx, variantID, qty)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	exists, err := inv.VariantExists(ctx, variantID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("variant", variantID)
	}

	checkoutConflicts.WithLabelValues("inventory").Inc()
	l.logger.InfoContext(ctx, "stock decrement lost",
		slog.String("variant_id", variantID),
		slog.Int("quantity", qty),
	)
	return apperrors.Conflict(fmt.Sprintf("Not enough stock left for variant %s, please try again", variantID))
}

// lockOrder returns the indexes of tracked items sorted by variant ID.
func lockOrder(items []domain.OrderItem) []int {
	idx := make([]int, 0, len(items))
	for i := range items {
		if items[i].StockVariantID != "" {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return strings.Compare(items[a].StockVariantID, items[b].StockVariantID)
	})
	return idx
}

// Increment puts an order item's units back on the variant they were taken
// from.
func (l *InventoryLedger) Increment(ctx context.Context, inv repository.InventoryRepository, item domain.OrderItem) error {
	if item.StockVariantID == "" {
		return nil
	}

	n, err := inv.IncrementVariant(ctx, item.StockVariantID, item.Quantity)
	if err != nil {
		return err
	}
	if n == 0 {
		l.logger.WarnContext(ctx, "variant removed before stock could be restored",
			slog.String("variant_id", item.StockVariantID),
			slog.String("order_item_id", item.ID),
			slog.Int("quantity", item.Quantity),
		)
	}
	return nil
}
