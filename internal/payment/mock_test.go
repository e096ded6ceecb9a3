package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func TestMockGateway_Lifecycle(t *testing.T) {
	gw := NewMockGateway(newTestLogger())
	ctx := context.Background()

	res, err := gw.Initiate(ctx, InitiateRequest{OrderID: "o-1", Amount: 500, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "mock_o-1", res.ProviderRef)
	assert.Equal(t, StatusPending, res.Status)
	assert.Contains(t, res.RedirectURL, "mock_o-1")

	paid, err := gw.Confirm(ctx, res.ProviderRef, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)

	failed, err := gw.Confirm(ctx, res.ProviderRef, json.RawMessage(`{"status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	require.NoError(t, gw.Refund(ctx, RefundRequest{ProviderRef: res.ProviderRef, Amount: 500}))
	assert.Len(t, gw.Refunds(), 1)
}

func TestMockGateway_ConfirmUnknown(t *testing.T) {
	_, err := NewMockGateway(newTestLogger()).Confirm(context.Background(), "mock_missing", nil)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
