package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Dedup interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string)
}

// Dispatcher consumes notification envelopes and delivers them via Sender.
type Dispatcher struct {
	Sender      Sender
	Dedup       Dedup // optional
	AdminEmails []string
	Log         *zap.Logger
}

// Handle is installed as the Kafka consumer handler. Undecodable messages are
// logged and acknowledged so they cannot wedge the partition.
func (d *Dispatcher) Handle(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		d.Log.Error("drop undecodable notification", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}

	msg, ok, err := d.render(env)
	if err != nil {
		d.Log.Error("drop malformed notification", zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	if d.Dedup != nil {
		first, err := d.Dedup.Claim(ctx, env.EventID)
		if err == nil && !first {
			return nil
		}
	}
	if err := d.Sender.Send(ctx, msg); err != nil {
		if d.Dedup != nil {
			d.Dedup.Release(ctx, env.EventID)
		}
		return fmt.Errorf("send %s %s: %w", env.EventType, env.EventID, err)
	}
	d.Log.Info("notification sent", zap.String("event_type", env.EventType),
		zap.String("correlation_id", env.CorrelationID), zap.Strings("to", msg.To))
	return nil
}

func (d *Dispatcher) render(env Envelope) (Message, bool, error) {
	switch env.EventType {
	case EventOrderConfirmation:
		n, err := kafkax.UnwrapPayload[OrderConfirmation](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		return renderConfirmation(n), true, nil
	case EventShippingUpdate:
		n, err := kafkax.UnwrapPayload[ShippingUpdate](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		return renderShippingUpdate(n), true, nil
	case EventInventoryAlert:
		n, err := kafkax.UnwrapPayload[InventoryAlert](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		if len(d.AdminEmails) == 0 {
			d.Log.Warn("inventory alert without admin recipients", zap.String("sku", n.VariantSKU))
			return Message{}, false, nil
		}
		m := renderInventoryAlert(n)
		m.To = d.AdminEmails
		return m, true, nil
	default:
		return Message{}, false, nil
	}
}

func renderConfirmation(n OrderConfirmation) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThank you for your order %s.\n\n", n.CustomerName, n.OrderNumber)
	for _, it := range n.Items {
		if it.Variant != "" {
			fmt.Fprintf(&b, "  %d x %s (%s) @ $%s\n", it.Quantity, it.Title, it.Variant, it.UnitPrice)
		} else {
			fmt.Fprintf(&b, "  %d x %s @ $%s\n", it.Quantity, it.Title, it.UnitPrice)
		}
	}
	fmt.Fprintf(&b, "\nSubtotal: $%s\nShipping: $%s\nTax: $%s\nTotal: $%s\n", n.Subtotal, n.Shipping, n.Tax, n.Total)
	a := n.ShippingAddress
	if a.Line1 != "" {
		fmt.Fprintf(&b, "\nShipping to:\n  %s\n", a.Line1)
		if a.Line2 != "" {
			fmt.Fprintf(&b, "  %s\n", a.Line2)
		}
		fmt.Fprintf(&b, "  %s, %s %s\n  %s\n", a.City, a.State, a.Zip, a.Country)
	}
	return Message{
		To:      []string{n.CustomerEmail},
		Subject: "Order Confirmation - " + n.OrderNumber,
		Body:    b.String(),
	}
}

func renderShippingUpdate(n ShippingUpdate) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour order %s is now %s.\n", n.CustomerName, n.OrderNumber, n.Status)
	if n.TrackingNumber != "" {
		if n.Carrier != "" {
			fmt.Fprintf(&b, "Tracking: %s %s\n", n.Carrier, n.TrackingNumber)
		} else {
			fmt.Fprintf(&b, "Tracking number: %s\n", n.TrackingNumber)
		}
	}
	return Message{
		To:      []string{n.CustomerEmail},
		Subject: fmt.Sprintf("Order %s: %s", n.OrderNumber, n.Status),
		Body:    b.String(),
	}
}

func renderInventoryAlert(n InventoryAlert) Message {
	label := "Low stock"
	if n.AlertType == "out_of_stock" {
		label = "Out of stock"
	}
	return Message{
		Subject: fmt.Sprintf("[Inventory] %s: %s (%s)", label, n.ProductTitle, n.VariantSKU),
		Body: fmt.Sprintf("%s for %s, variant %s.\nCurrent stock: %d (threshold %d).\n",
			label, n.ProductTitle, n.VariantSKU, n.Stock, n.Threshold),
	}
}
