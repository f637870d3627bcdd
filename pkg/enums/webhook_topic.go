package enums

import "strings"

// WebhookEventKind is the closed set of channel events the gateway routes.
type WebhookEventKind string

const (
	WebhookEventOrderCreated         WebhookEventKind = "order-created"
	WebhookEventOrderUpdated         WebhookEventKind = "order-updated"
	WebhookEventOrderFulfilled       WebhookEventKind = "order-fulfilled"
	WebhookEventOrderCancelled       WebhookEventKind = "order-cancelled"
	WebhookEventProductSync          WebhookEventKind = "product-sync"
	WebhookEventProductDelete        WebhookEventKind = "product-delete"
	WebhookEventInventoryLevelUpdate WebhookEventKind = "inventory-level-update"
	WebhookEventCustomerSync         WebhookEventKind = "customer-sync"
	WebhookEventUnknown              WebhookEventKind = "unknown"
)

var webhookTopicKinds = map[string]WebhookEventKind{
	"orders/create":           WebhookEventOrderCreated,
	"orders/updated":          WebhookEventOrderUpdated,
	"orders/fulfilled":        WebhookEventOrderFulfilled,
	"orders/cancelled":        WebhookEventOrderCancelled,
	"products/create":         WebhookEventProductSync,
	"products/update":         WebhookEventProductSync,
	"products/delete":         WebhookEventProductDelete,
	"inventory_levels/update": WebhookEventInventoryLevelUpdate,
	"customers/create":        WebhookEventCustomerSync,
	"customers/update":        WebhookEventCustomerSync,
}

// KindForTopic maps a raw channel topic header to its event kind. Topics the
// gateway does not know map to WebhookEventUnknown.
func KindForTopic(topic string) WebhookEventKind {
	if kind, ok := webhookTopicKinds[strings.ToLower(strings.TrimSpace(topic))]; ok {
		return kind
	}
	return WebhookEventUnknown
}
