package channelwebhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// externalID accepts the channel's ids whether they arrive as JSON numbers
// or strings.
type externalID string

func (id *externalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = externalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("external id: %w", err)
	}
	*id = externalID(n.String())
	return nil
}

func (id externalID) String() string { return string(id) }

// money parses the channel's decimal strings ("129.90") and tolerates
// missing values.
type money struct {
	decimal.Decimal
}

func (m *money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(data)
}

type orderPayload struct {
	ID                externalID       `json:"id"`
	OrderNumber       externalID       `json:"order_number"`
	Name              string           `json:"name"`
	Email             string           `json:"email"`
	FinancialStatus   *string          `json:"financial_status"`
	FulfillmentStatus *string          `json:"fulfillment_status"`
	TotalPrice        money            `json:"total_price"`
	Currency          string           `json:"currency"`
	CancelledAt       *time.Time       `json:"cancelled_at"`
	Customer          *customerPayload `json:"customer"`
}

type productPayload struct {
	ID          externalID `json:"id"`
	Title       string     `json:"title"`
	Handle      string     `json:"handle"`
	Vendor      string     `json:"vendor"`
	ProductType string     `json:"product_type"`
	Status      string     `json:"status"`
	Tags        string     `json:"tags"`
}

type customerPayload struct {
	ID               externalID `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Phone            *string    `json:"phone"`
	AcceptsMarketing bool       `json:"accepts_marketing"`
	TotalSpent       money      `json:"total_spent"`
	OrdersCount      int        `json:"orders_count"`
}

type inventoryLevelPayload struct {
	InventoryItemID externalID `json:"inventory_item_id"`
	LocationID      externalID `json:"location_id"`
	Available       *int       `json:"available"`
}

// Envelope is what every ingested event is forwarded to automation as.
type Envelope struct {
	Topic      string          `json:"topic"`
	ShopDomain string          `json:"shopDomain,omitempty"`
	DeliveryID string          `json:"deliveryId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
