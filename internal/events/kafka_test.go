package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []skafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesJSON(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewKafkaPublisherWithWriter(writer, nil)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	err := publisher.Publish(context.Background(), "42", Event{
		Type:       TypeInvoiceCharged,
		RunID:      "run-1",
		OccurredAt: at,
		Invoice: &Invoice{
			ID:       "42",
			Amount:   decimal.RequireFromString("19.99"),
			Currency: money.EUR,
		},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeInvoiceCharged, string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TypeInvoiceCharged, decoded["type"])
	invoice := decoded["invoice"].(map[string]any)
	assert.Equal(t, "19.99", invoice["amount"])
	assert.Equal(t, "EUR", invoice["currency"])

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherReturnsWriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher := NewKafkaPublisherWithWriter(writer, nil)

	err := publisher.Publish(context.Background(), "k", Event{Type: TypePassCompleted})
	assert.EqualError(t, err, "broker down")
}

func TestNoopPublisher(t *testing.T) {
	publisher := NewNoop()
	assert.NoError(t, publisher.Publish(context.Background(), "k", Event{}))
	assert.NoError(t, publisher.Close())
}
