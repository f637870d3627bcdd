package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ChannelCustomer struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID       string          `gorm:"column:external_id;not null;uniqueIndex"`
	Email            string          `gorm:"column:email"`
	FirstName        string          `gorm:"column:first_name"`
	LastName         string          `gorm:"column:last_name"`
	Phone            string          `gorm:"column:phone"`
	AcceptsMarketing bool            `gorm:"column:accepts_marketing;not null;default:false"`
	TotalSpent       decimal.Decimal `gorm:"column:total_spent;type:numeric(14,2);not null;default:0"`
	OrdersCount      int             `gorm:"column:orders_count;not null;default:0"`
	Payload          json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChannelCustomer) TableName() string { return "channel_customers" }

func (c *ChannelCustomer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
