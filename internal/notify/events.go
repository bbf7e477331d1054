package notify

import (
	"encoding/json"
	"time"
)

const TopicNotifications = "storefront.notifications"

const (
	EventOrderConfirmation = "OrderConfirmation"
	EventShippingUpdate    = "ShippingUpdate"
	EventInventoryAlert    = "InventoryAlert"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number or product id
	Payload       json.RawMessage `json:"payload"`
}

type OrderLine struct {
	Title     string `json:"title"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Money fields are pre-formatted with two decimals.
type OrderConfirmation struct {
	OrderNumber     string      `json:"order_number"`
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	Items           []OrderLine `json:"items"`
	Subtotal        string      `json:"subtotal"`
	Shipping        string      `json:"shipping"`
	Tax             string      `json:"tax"`
	Total           string      `json:"total"`
	ShippingAddress Address     `json:"shipping_address"`
}

type ShippingUpdate struct {
	OrderNumber    string `json:"order_number"`
	CustomerName   string `json:"customer_name"`
	CustomerEmail  string `json:"customer_email"`
	Status         string `json:"status"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type InventoryAlert struct {
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	VariantSKU   string `json:"variant_sku"`
	AlertType    string `json:"alert_type"`
	Stock        int    `json:"stock"`
	Threshold    int    `json:"threshold"`
}
