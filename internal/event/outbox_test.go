package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
	"github.com/utafrali/ordercore/pkg/logger"
)

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:             "order-1",
		OrderNumber:    "0192f0c4-6b1e-7c3a-9a55-1b2c3d4e5f60",
		UserID:         "user-1",
		ContactEmail:   "asha@example.com",
		Status:         domain.OrderStatusPending,
		SubtotalAmount: 99900,
		TotalAmount:    109900,
		Currency:       "INR",
		Items: []domain.OrderItem{
			{ID: "item-1", Ref: domain.CatalogRef{ProductID: "p-1", VariantID: "v-1"}, Quantity: 1, UnitPrice: 99900, Currency: "INR"},
			{ID: "item-2", Ref: domain.CustomRef{CustomProductID: "c-1"}, Quantity: 2, UnitPrice: 0, Currency: "INR"},
		},
	}
}

func TestTopicFor(t *testing.T) {
	topic, err := TopicFor(domain.EventOrderCreated)
	require.NoError(t, err)
	assert.Equal(t, "ordercore.order.created", topic)

	topic, err = TopicFor(domain.EventOrderCanceled)
	require.NoError(t, err)
	assert.Equal(t, "ordercore.order.canceled", topic)

	_, err = TopicFor("order.exploded")
	assert.Error(t, err)
}

func TestNewOrderOutboxEvent(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-42")
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	evt, err := NewOrderOutboxEvent(ctx, domain.EventOrderCreated, sampleOrder(), domain.PaymentMethodCOD, now)
	require.NoError(t, err)

	assert.Equal(t, TopicOrderCreated, evt.Topic)
	assert.Equal(t, "order-1", evt.AggregateID)
	assert.Equal(t, AggregateTypeOrder, evt.AggregateType)
	assert.Equal(t, domain.OutboxStatusPending, evt.Status)
	assert.Equal(t, now, evt.CreatedAt)

	env, err := pkgkafka.UnmarshalEvent(evt.Payload)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, env.EventID, "outbox id is the envelope id consumers dedupe on")
	assert.Equal(t, "corr-42", env.CorrelationID)
	assert.Equal(t, Source, env.Source)

	var data domain.OrderEvent
	require.NoError(t, env.UnmarshalData(&data))
	assert.Equal(t, int64(109900), data.TotalAmount)
	assert.Equal(t, domain.PaymentMethodCOD, data.PaymentMethod)
	assert.Equal(t, "asha@example.com", data.ContactEmail)
	require.Len(t, data.Items, 2)
	assert.Equal(t, domain.LineKindCatalog, data.Items[0].Kind)
	assert.Equal(t, domain.LineKindCustom, data.Items[1].Kind)
	assert.Equal(t, "c-1", data.Items[1].CustomProductID)
}

func TestNewOrderOutboxEvent_UnknownType(t *testing.T) {
	_, err := NewOrderOutboxEvent(context.Background(), "order.lost", sampleOrder(), "card", time.Now())
	assert.Error(t, err)
}
