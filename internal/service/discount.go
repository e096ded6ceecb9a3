package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// DiscountEvaluation is an accepted discount and the amount it takes off.
type DiscountEvaluation struct {
	Discount *domain.Discount `json:"discount"`
	Amount   int64            `json:"amount"`
}

// DiscountEvaluator decides whether a code applies to an order subtotal.
type DiscountEvaluator struct {
	repo   repository.DiscountRepository
	logger *slog.Logger
}

// NewDiscountEvaluator creates a discount evaluator. repo serves previews;
// checkout passes its own transaction-bound repository.
func NewDiscountEvaluator(repo repository.DiscountRepository, logger *slog.Logger) *DiscountEvaluator {
	return &DiscountEvaluator{repo: repo, logger: logger}
}

// Evaluate previews code against subtotal without taking any lock.
func (e *DiscountEvaluator) Evaluate(ctx context.Context, code string, subtotal int64, now time.Time) (*DiscountEvaluation, error) {
	return e.evaluate(ctx, e.repo, code, subtotal, now, false)
}

// EvaluateForUpdate is Evaluate inside a unit of work. It locks the
// discount row so the redemption count stays valid until commit.
func (e *DiscountEvaluator) EvaluateForUpdate(ctx context.Context, repo repository.DiscountRepository, code string, subtotal int64, now time.Time) (*DiscountEvaluation, error) {
	return e.evaluate(ctx, repo, code, subtotal, now, true)
}

func (e *DiscountEvaluator) evaluate(ctx context.Context, repo repository.DiscountRepository, code string, subtotal int64, now time.Time, lock bool) (*DiscountEvaluation, error) {
	code = domain.NormalizeDiscountCode(code)

	get := repo.GetByCode
	if lock {
		get = repo.GetByCodeForUpdate
	}
	d, err := get(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, e.reject(ctx, code, domain.UnknownDiscount())
	}
	if err != nil {
		return nil, fmt.Errorf("get discount %s: %w", code, err)
	}

	redemptions := 0
	if d.UsageLimit != nil {
		if redemptions, err = repo.CountRedemptions(ctx, d.ID); err != nil {
			return nil, fmt.Errorf("count redemptions: %w", err)
		}
	}

	amount, err := d.Apply(subtotal, redemptions, now)
	if err != nil {
		var rej *domain.DiscountRejection
		if errors.As(err, &rej) {
			return nil, e.reject(ctx, code, rej)
		}
		return nil, err
	}

	return &DiscountEvaluation{Discount: d, Amount: amount}, nil
}

func (e *DiscountEvaluator) reject(ctx context.Context, code string, rej *domain.DiscountRejection) error {
	discountRejections.WithLabelValues(rej.Reason).Inc()
	e.logger.InfoContext(ctx, "discount rejected",
		slog.String("code", code),
		slog.String("reason", rej.Reason),
	)
	return apperrors.BusinessRule(apperrors.CodeInvalidDiscount, rej.Message)
}
