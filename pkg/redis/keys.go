package redis

import "strings"

const keyNamespace = "invsync"

// Key families. Every key is "invsync:<family>:<parts...>".
const (
	familyIdempotency = "idempotency"
	familyWebhook     = "webhook"
	familyInventory   = "inventory"
	familyLock        = "lock"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(familyIdempotency, scope, id)
}

// WebhookDedupeKey marks a channel delivery as seen.
func (c *Client) WebhookDedupeKey(deliveryID string) string {
	return buildKey(familyWebhook, "seen", deliveryID)
}

// ItemQuantityKey holds the cached available quantity of one item.
func (c *Client) ItemQuantityKey(itemID string) string {
	return buildKey(familyInventory, "qty", itemID)
}

func (c *Client) LockKey(name string) string {
	return buildKey(familyLock, name)
}

// buildKey drops blank parts so optional scopes never leave "::" behind.
func buildKey(family string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(family)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
