package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ChannelOrder mirrors an order placed on the external sales channel, keyed
// by the channel's own id.
type ChannelOrder struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID         string          `gorm:"column:external_id;not null;uniqueIndex"`
	OrderNumber        string          `gorm:"column:order_number"`
	Email              string          `gorm:"column:email"`
	CustomerExternalID *string         `gorm:"column:customer_external_id"`
	FinancialStatus    string          `gorm:"column:financial_status"`
	FulfillmentStatus  string          `gorm:"column:fulfillment_status"`
	TotalPrice         decimal.Decimal `gorm:"column:total_price;type:numeric(14,2);not null;default:0"`
	Currency           string          `gorm:"column:currency"`
	CancelledAt        *time.Time      `gorm:"column:cancelled_at"`
	Payload            json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelOrder) TableName() string { return "channel_orders" }

func (o *ChannelOrder) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
