package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/ordercore/pkg/httpclient"
)

const remoteName = "payment-gateway"

// Doer sends HTTP requests. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPGateway talks to a JSON payment provider API.
type HTTPGateway struct {
	client  Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway rooted at baseURL.
func NewHTTPGateway(client Doer, baseURL string, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Initiate posts the payment. The order ID doubles as the idempotency key,
// so the client may retry it safely.
func (g *HTTPGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	var out struct {
		Data InitiateResult `json:"data"`
	}
	if err := g.post(ctx, "/v1/payments", req.OrderID, req, &out); err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	return &out.Data, nil
}

// Confirm forwards a callback payload for verification.
func (g *HTTPGateway) Confirm(ctx context.Context, providerRef string, payload json.RawMessage) (*ConfirmResult, error) {
	var out struct {
		Data ConfirmResult `json:"data"`
	}
	path := "/v1/payments/" + url.PathEscape(providerRef) + "/confirm"
	body := struct {
		Payload json.RawMessage `json:"payload,omitempty"`
	}{payload}
	if err := g.post(ctx, path, "confirm-"+providerRef, body, &out); err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	return &out.Data, nil
}

// Refund requests a refund.
func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) error {
	path := "/v1/payments/" + url.PathEscape(req.ProviderRef) + "/refunds"
	if err := g.post(ctx, path, "refund-"+req.ProviderRef, req, nil); err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	return nil
}

func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, remoteName)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", remoteName, err)
	}
	return nil
}
