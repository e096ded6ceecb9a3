package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/ordercore/pkg/httpclient"
)

const remoteName = "email-api"

// Doer sends HTTP requests. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPSender posts emails to a JSON email API.
type HTTPSender struct {
	client  Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPSender creates a sender rooted at baseURL.
func NewHTTPSender(client Doer, baseURL string, logger *slog.Logger) *HTTPSender {
	return &HTTPSender{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

type emailRequest struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Data     OrderConfirmation `json:"data"`
}

// SendOrderConfirmation posts the email. The order ID is the idempotency
// key, so a redelivered event does not send twice.
func (s *HTTPSender) SendOrderConfirmation(ctx context.Context, msg OrderConfirmation) error {
	body, err := json.Marshal(emailRequest{Template: "order_confirmation", To: msg.To, Data: msg})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "order-confirmation-"+msg.OrderID)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send order confirmation: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send order confirmation: %w", httpclient.ParseResponseError(resp, remoteName))
	}
	_ = resp.Body.Close()

	s.logger.DebugContext(ctx, "order confirmation sent",
		slog.String("order_id", msg.OrderID),
	)
	return nil
}
