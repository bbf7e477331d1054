package notify

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notifier is the outbound notification port. Implementations must not block
// on delivery; callers treat every error as log-only.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, n OrderConfirmation) error
	SendShippingUpdate(ctx context.Context, n ShippingUpdate) error
	SendInventoryAlert(ctx context.Context, n InventoryAlert) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// KafkaNotifier hands notifications to the notifier worker through Kafka.
type KafkaNotifier struct {
	Producer Publisher
	Service  string
}

func (k *KafkaNotifier) SendOrderConfirmation(_ context.Context, n OrderConfirmation) error {
	return k.publish(EventOrderConfirmation, n.OrderNumber, n)
}

func (k *KafkaNotifier) SendShippingUpdate(_ context.Context, n ShippingUpdate) error {
	return k.publish(EventShippingUpdate, n.OrderNumber, n)
}

func (k *KafkaNotifier) SendInventoryAlert(_ context.Context, n InventoryAlert) error {
	return k.publish(EventInventoryAlert, n.ProductID+"/"+n.VariantSKU, n)
}

func (k *KafkaNotifier) publish(eventType, correlationID string, payload any) error {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      k.Service,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	err := k.Producer.Publish([]byte(correlationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: HeaderEventType, Value: []byte(eventType)},
		kafkago.Header{Key: HeaderEventVersion, Value: []byte("1")},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// LogNotifier only logs. It stands in when no broker is configured.
type LogNotifier struct{ Log *zap.Logger }

func (l *LogNotifier) SendOrderConfirmation(_ context.Context, n OrderConfirmation) error {
	l.Log.Info("order confirmation", zap.String("order_number", n.OrderNumber),
		zap.String("email", n.CustomerEmail), zap.String("total", n.Total))
	return nil
}

func (l *LogNotifier) SendShippingUpdate(_ context.Context, n ShippingUpdate) error {
	l.Log.Info("shipping update", zap.String("order_number", n.OrderNumber),
		zap.String("status", n.Status), zap.String("tracking", n.TrackingNumber))
	return nil
}

func (l *LogNotifier) SendInventoryAlert(_ context.Context, n InventoryAlert) error {
	l.Log.Info("inventory alert", zap.String("product_id", n.ProductID),
		zap.String("sku", n.VariantSKU), zap.String("type", n.AlertType), zap.Int("stock", n.Stock))
	return nil
}
