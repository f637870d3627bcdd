package enums

import "testing"

func TestParseSyncSource(t *testing.T) {
	for _, value := range []string{"channel", "storefront", "automation", "manual"} {
		got, err := ParseSyncSource(value)
		if err != nil {
			t.Fatalf("ParseSyncSource(%q) returned error: %v", value, err)
		}
		if string(got) != value {
			t.Fatalf("expected %q, got %q", value, got)
		}
	}
	if _, err := ParseSyncSource("shopify"); err == nil {
		t.Fatal("expected unknown source to fail")
	}
}

func TestSyncSourceIsLocal(t *testing.T) {
	if SyncSourceChannel.IsLocal() {
		t.Fatal("channel source must not be local")
	}
	for _, s := range []SyncSource{SyncSourceStorefront, SyncSourceAutomation, SyncSourceManual} {
		if !s.IsLocal() {
			t.Fatalf("expected %q to be local", s)
		}
	}
	if SyncSource("bogus").IsLocal() {
		t.Fatal("invalid source must not be local")
	}
}

func TestKindForTopic(t *testing.T) {
	cases := map[string]WebhookEventKind{
		"orders/create":           WebhookEventOrderCreated,
		"ORDERS/UPDATED":          WebhookEventOrderUpdated,
		" orders/fulfilled ":      WebhookEventOrderFulfilled,
		"orders/cancelled":        WebhookEventOrderCancelled,
		"products/create":         WebhookEventProductSync,
		"products/update":         WebhookEventProductSync,
		"products/delete":         WebhookEventProductDelete,
		"inventory_levels/update": WebhookEventInventoryLevelUpdate,
		"customers/create":        WebhookEventCustomerSync,
		"customers/update":        WebhookEventCustomerSync,
		"app/uninstalled":         WebhookEventUnknown,
		"":                        WebhookEventUnknown,
	}
	for topic, want := range cases {
		if got := KindForTopic(topic); got != want {
			t.Fatalf("KindForTopic(%q) = %q, want %q", topic, got, want)
		}
	}
}

func TestDeadLetterReasonIsValid(t *testing.T) {
	if !DeadLetterReasonQueueFull.IsValid() {
		t.Fatal("queue_full should be valid")
	}
	if DeadLetterReason("nope").IsValid() {
		t.Fatal("unexpected valid reason")
	}
}
