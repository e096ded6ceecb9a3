package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/event"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// AddressInput either names a saved address or describes a new one.
type AddressInput struct {
	ID         string
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// CreateOrderInput holds the parameters for checkout.
type CreateOrderInput struct {
	UserID          string
	CartID          string
	Lines           []SnapshotLine
	DiscountCode    string
	PaymentMethod   string
	ContactEmail    string
	ShippingAddress AddressInput
	BillingAddress  *AddressInput
}

// OrderDetails is an order with everything a client shows after checkout.
type OrderDetails struct {
	Order           *domain.Order    `json:"order"`
	Payment         *domain.Payment  `json:"payment"`
	ShippingAddress *domain.Address  `json:"shipping_address"`
	BillingAddress  *domain.Address  `json:"billing_address"`
	Discount        *domain.Discount `json:"discount,omitempty"`
}

// CheckoutService coordinates order creation, cancellation and payment
// confirmation. Every state change runs in one unit of work.
type CheckoutService struct {
	uow       repository.UnitOfWork
	repos     repository.Repositories
	assembler *OrderAssembler
	ledger    *InventoryLedger
	gateway   payment.Gateway
	logger    *slog.Logger
	now       func() time.Time
}

// NewCheckoutService creates a checkout service. repos serves reads and
// post-commit updates outside any transaction.
func NewCheckoutService(
	uow repository.UnitOfWork,
	repos repository.Repositories,
	assembler *OrderAssembler,
	ledger *InventoryLedger,
	gateway payment.Gateway,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		uow:       uow,
		repos:     repos,
		assembler: assembler,
		ledger:    ledger,
		gateway:   gateway,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder turns a cart or snapshot into an order. Pricing, discount
// redemption, stock decrements, the payment record, clearing the cart and
// the order.created event commit together or not at all.
func (s *CheckoutService) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderDetails, error) {
	if in.UserID == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = domain.PaymentMethodCOD
	}

	var details *OrderDetails
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		draft, err := s.assembler.Assemble(ctx, repos, AssembleInput{
			UserID:        in.UserID,
			CartID:        in.CartID,
			Snapshot:      in.Lines,
			DiscountCode:  in.DiscountCode,
			PaymentMethod: in.PaymentMethod,
		})
		if err != nil {
			return err
		}
		order := draft.Order

		shipping, err := s.resolveAddress(ctx, repos.Addresses, in.UserID, in.ShippingAddress)
		if err != nil {
			return fmt.Errorf("shipping address: %w", err)
		}
		billing := shipping
		if in.BillingAddress != nil {
			if billing, err = s.resolveAddress(ctx, repos.Addresses, in.UserID, *in.BillingAddress); err != nil {
				return fmt.Errorf("billing address: %w", err)
			}
		}
		order.ShippingAddressID = shipping.ID
		order.BillingAddressID = billing.ID
		order.ContactEmail = in.ContactEmail

		if err := s.ledger.DecrementItems(ctx, repos.Inventory, order.Items); err != nil {
			return err
		}

		if err := repos.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		pay := &domain.Payment{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Method:    in.PaymentMethod,
			Status:    domain.PaymentStatusInitiated,
			Amount:    order.TotalAmount,
			Currency:  order.Currency,
			CreatedAt: order.CreatedAt,
			UpdatedAt: order.CreatedAt,
		}
		if err := repos.Payments.Create(ctx, pay); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if in.CartID != "" {
			if err := repos.Carts.Clear(ctx, in.CartID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}

		evt, err := event.NewOrderOutboxEvent(ctx, domain.EventOrderCreated, order, pay.Method, order.CreatedAt)
		if err != nil {
			return err
		}
		if err := repos.Outbox.Insert(ctx, evt); err != nil {
			return fmt.Errorf("enqueue order.created: %w", err)
		}

		details = &OrderDetails{
			Order:           order,
			Payment:         pay,
			ShippingAddress: shipping,
			BillingAddress:  billing,
			Discount:        draft.Discount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordersCreated.WithLabelValues(details.Payment.Method).Inc()
	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", details.Order.ID),
		slog.String("order_number", details.Order.OrderNumber),
		slog.String("user_id", details.Order.UserID),
		slog.Int64("total_amount", details.Order.TotalAmount),
		slog.String("payment_method", details.Payment.Method),
	)

	if !details.Payment.IsCOD() {
		s.initiatePayment(ctx, details)
	}
	return details, nil
}

// initiatePayment asks the gateway to start a non-COD payment. The order
// is already committed, so a failure leaves it pending with an initiated
// payment the shopper can retry.
func (s *CheckoutService) initiatePayment(ctx context.Context, d *OrderDetails) {
	res, err := s.gateway.Initiate(ctx, payment.InitiateRequest{
		OrderID:     d.Order.ID,
		OrderNumber: d.Order.OrderNumber,
		Amount:      d.Payment.Amount,
		Currency:    d.Payment.Currency,
		Method:      d.Payment.Method,
	})
	if err != nil {
		paymentGatewayFailures.WithLabelValues("initiate").Inc()
		s.logger.ErrorContext(ctx, "payment initiation failed",
			slog.String("order_id", d.Order.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.repos.Payments.SetProviderDetails(ctx, d.Payment.ID, res.ProviderRef, res.RedirectURL); err != nil {
		s.logger.ErrorContext(ctx, "failed to store payment provider details",
			slog.String("order_id", d.Order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.Payment.ProviderRef = res.ProviderRef
	d.Payment.RedirectURL = res.RedirectURL
}

func (s *CheckoutService) resolveAddress(ctx context.Context, repo repository.AddressRepository, userID string, in AddressInput) (*domain.Address, error) {
	if in.ID != "" {
		addr, err := repo.GetByID(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if addr.UserID != userID {
			return nil, apperrors.Forbidden("address belongs to another user")
		}
		return addr, nil
	}

	addr := &domain.Address{
		ID:         uuid.NewString(),
		UserID:     userID,
		FullName:   in.FullName,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		State:      in.State,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Phone:      in.Phone,
		CreatedAt:  s.now(),
	}
	if err := repo.Create(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

// CancelOrder cancels a pending or processing order owned by userID and
// puts its stock back. A paid payment is refunded after commit.
func (s *CheckoutService) CancelOrder(ctx context.Context, userID, orderID, reason string) (*domain.Order, error) {
	var (
		order *domain.Order
		pay   *domain.Payment
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperrors.NotFound("order", orderID)
		}
		if !o.IsCancelable() {
			return apperrors.BusinessRule(apperrors.CodeOrderNotCancelable,
				fmt.Sprintf("Order cannot be canceled while %s", o.Status))
		}

		if err := s.ledger.IncrementItems(ctx, repos.Inventory, o.Items); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}

		if err := repos.Orders.UpdateStatus(ctx, o.ID, domain.OrderStatusCanceled, reason); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCanceled
		o.CanceledReason = reason
		o.UpdatedAt = s.now()

		p, err := repos.Payments.GetByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}

		evt, err := event.NewOrderOutboxEvent(ctx, domain.EventOrderCanceled, o, p.Method, o.UpdatedAt)
		if err != nil {
			return err
		}
		if err := repos.Outbox.Insert(ctx, evt); err != nil {
			return fmt.Errorf("enqueue order.canceled: %w", err)
		}

		order, pay = o, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordersCanceled.Inc()
	s.logger.InfoContext(ctx, "order canceled",
		slog.String("order_id", order.ID),
		slog.String("reason", reason),
	)

	if pay.Status == domain.PaymentStatusPaid && pay.ProviderRef != "" {
		s.refund(ctx, order, pay)
	}
	return order, nil
}

func (s *CheckoutService) refund(ctx context.Context, o *domain.Order, p *domain.Payment) bool {
	err := s.gateway.Refund(ctx, payment.RefundRequest{
		ProviderRef: p.ProviderRef,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Reason:      o.CanceledReason,
	})
	if err != nil {
		paymentGatewayFailures.WithLabelValues("refund").Inc()
		s.logger.ErrorContext(ctx, "refund failed",
			slog.String("order_id", o.ID),
			slog.String("provider_ref", p.ProviderRef),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.repos.Payments.UpdateStatus(ctx, p.ID, domain.PaymentStatusRefunded); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark payment refunded",
			slog.String("payment_id", p.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// ConfirmPayment verifies a provider callback for an order. A paid result
// moves a pending order to processing; a failed one marks the payment
// failed and leaves the order pending.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, orderID, providerRef string, payload json.RawMessage) (*OrderDetails, error) {
	res, err := s.gateway.Confirm(ctx, providerRef, payload)
	if err != nil {
		paymentGatewayFailures.WithLabelValues("confirm").Inc()
		return nil, err
	}

	var (
		details    *OrderDetails
		lateRefund bool
	)
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		p, err := repos.Payments.GetByOrderID(ctx, o.ID)
		if err != nil {
			return err
		}
		if p.ProviderRef != providerRef {
			return apperrors.InvalidInput("provider_ref does not match the order's payment")
		}

		switch res.Status {
		case payment.StatusPaid:
			if p.Status == domain.PaymentStatusRefunded {
				break
			}
			if p.Status != domain.PaymentStatusPaid {
				if err := repos.Payments.UpdateStatus(ctx, p.ID, domain.PaymentStatusPaid); err != nil {
					return err
				}
				p.Status = domain.PaymentStatusPaid
			}
			switch o.Status {
			case domain.OrderStatusPending:
				if err := repos.Orders.UpdateStatus(ctx, o.ID, domain.OrderStatusProcessing, ""); err != nil {
					return err
				}
				o.Status = domain.OrderStatusProcessing
			case domain.OrderStatusCanceled:
				// Captured after cancel: the money goes back.
				lateRefund = true
			}
		case payment.StatusFailed:
			if p.Status == domain.PaymentStatusInitiated {
				if err := repos.Payments.UpdateStatus(ctx, p.ID, domain.PaymentStatusFailed); err != nil {
					return err
				}
				p.Status = domain.PaymentStatusFailed
			}
		}

		details = &OrderDetails{Order: o, Payment: p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment confirmed",
		slog.String("order_id", orderID),
		slog.String("provider_status", res.Status),
		slog.String("order_status", details.Order.Status),
	)

	if lateRefund {
		s.logger.WarnContext(ctx, "payment captured for a canceled order, refunding",
			slog.String("order_id", orderID),
			slog.String("provider_ref", providerRef),
		)
		if s.refund(ctx, details.Order, details.Payment) {
			details.Payment.Status = domain.PaymentStatusRefunded
		}
	}
	return details, nil
}

// GetOrder returns an order owned by userID with its payment, addresses and
// discount.
func (s *CheckoutService) GetOrder(ctx context.Context, userID, orderID string) (*OrderDetails, error) {
	o, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if o.UserID != userID {
		return nil, apperrors.NotFound("order", orderID)
	}

	d := &OrderDetails{Order: o}
	if d.Payment, err = s.repos.Payments.GetByOrderID(ctx, o.ID); err != nil {
		return nil, err
	}
	if d.ShippingAddress, err = s.repos.Addresses.GetByID(ctx, o.ShippingAddressID); err != nil {
		return nil, err
	}
	d.BillingAddress = d.ShippingAddress
	if o.BillingAddressID != o.ShippingAddressID {
		if d.BillingAddress, err = s.repos.Addresses.GetByID(ctx, o.BillingAddressID); err != nil {
			return nil, err
		}
	}
	if o.DiscountCode != "" {
		if d.Discount, err = s.repos.Discounts.GetByCode(ctx, o.DiscountCode); err != nil {
			s.logger.WarnContext(ctx, "applied discount no longer readable",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return d, nil
}

// ListOrders returns the user's orders, newest first.
func (s *CheckoutService) ListOrders(ctx context.Context, userID string, status *string, page, perPage int) ([]domain.Order, int, error) {
	if status != nil && !domain.IsValidStatus(*status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", *status))
	}

	orders, total, err := s.repos.Orders.List(ctx, repository.OrderFilter{
		UserID:  &userID,
		Status:  status,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}
