package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// MockGateway accepts every payment. A confirm payload of
// {"status":"failed"} reports a failed payment. It is used when no
// gateway URL is configured.
type MockGateway struct {
	mu       sync.Mutex
	payments map[string]InitiateRequest
	refunds  []RefundRequest
	logger   *slog.Logger
}

// NewMockGateway creates a mock gateway.
func NewMockGateway(logger *slog.Logger) *MockGateway {
	return &MockGateway{payments: make(map[string]InitiateRequest), logger: logger}
}

// Initiate records the payment and returns a fake redirect.
func (g *MockGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	ref := "mock_" + req.OrderID

	g.mu.Lock()
	g.payments[ref] = req
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "mock gateway: payment initiated",
		slog.String("provider_ref", ref),
		slog.Int64("amount", req.Amount),
		slog.String("currency", req.Currency),
	)
	return &InitiateResult{
		ProviderRef: ref,
		RedirectURL: "https://pay.invalid/checkout/" + ref,
		Status:      StatusPending,
	}, nil
}

// Confirm reports paid unless the payload says otherwise.
func (g *MockGateway) Confirm(_ context.Context, providerRef string, payload json.RawMessage) (*ConfirmResult, error) {
	g.mu.Lock()
	_, ok := g.payments[providerRef]
	g.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("payment", providerRef)
	}

	status := StatusPaid
	var body struct {
		Status string `json:"status"`
	}
	if len(payload) > 0 && json.Unmarshal(payload, &body) == nil && body.Status == StatusFailed {
		status = StatusFailed
	}
	return &ConfirmResult{ProviderRef: providerRef, Status: status}, nil
}

// Refund records the refund.
func (g *MockGateway) Refund(ctx context.Context, req RefundRequest) error {
	g.mu.Lock()
	g.refunds = append(g.refunds, req)
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "mock gateway: payment refunded",
		slog.String("provider_ref", req.ProviderRef),
		slog.Int64("amount", req.Amount),
	)
	return nil
}

// Refunds returns the refunds recorded so far.
func (g *MockGateway) Refunds() []RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RefundRequest, len(g.refunds))
	copy(out, g.refunds)
	return out
}
