// Package notify holds the outbound collaborators of the core: alert
// notifications, alert emails and the movement event stream. All of them are
// fire-and-forget; the order flow never waits on delivery.
package notify

import (
	"context"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaNotifier publishes low-stock alerts as events on the alerts topic.
type KafkaNotifier struct {
	Producer *kafkax.Producer
	Service  string
}

func (n *KafkaNotifier) CreateAlert(_ context.Context, a inventory.LowStockAlert) error {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventLowStockAlert,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.Service,
		CorrelationID: a.ProductID,
		Payload:       kafkax.MustMarshal(orders.LowStockAlertPayload{Alert: a}),
	}
	n.Producer.Publish(orders.PartitionKey(a.ProductID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventLowStockAlert)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

// LogEmailSender stands in for the real mail transport, which lives outside
// this subsystem. It records what would have been sent.
type LogEmailSender struct{ Log *zap.Logger }

func (s *LogEmailSender) SendAlertEmail(_ context.Context, alerts []inventory.LowStockAlert) error {
	for _, a := range alerts {
		s.Log.Info("critical stock email",
			zap.String("product_id", a.ProductID),
			zap.String("sku", a.SKU),
			zap.String("level", string(a.Level)),
			zap.Int("available", a.Available))
	}
	return nil
}

// PublishingStore decorates a StockStore so every appended ledger row is also
// published on the movement topic. The write to the store stays the source of
// truth; a publish failure is the producer loop's problem, not the caller's.
type PublishingStore struct {
	inventory.StockStore
	Producer *kafkax.Producer
	Service  string
}

func (s *PublishingStore) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	if err := s.StockStore.AppendMovement(ctx, m); err != nil {
		return err
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockMovement,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: m.ProductID,
		Payload:       kafkax.MustMarshal(orders.StockMovementPayload{Movement: *m}),
	}
	s.Producer.Publish(orders.PartitionKey(m.ProductID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockMovement)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
