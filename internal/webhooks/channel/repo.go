package channelwebhook

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/inventory-sync/pkg/db/models"
)

// Repository mirrors channel records. Every write is keyed by the channel's
// external id, so replays overwrite instead of duplicating.
type Repository interface {
	UpsertOrder(ctx context.Context, order *models.ChannelOrder) error
	UpsertProduct(ctx context.Context, product *models.ChannelProduct) error
	DeactivateProduct(ctx context.Context, externalID string) (int64, error)
	UpsertCustomer(ctx context.Context, customer *models.ChannelCustomer) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func upsertOn(columns ...string) clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}
}

func (r *repository) UpsertOrder(ctx context.Context, order *models.ChannelOrder) error {
	return r.db.WithContext(ctx).
		Clauses(upsertOn(
			"order_number", "email", "customer_external_id", "financial_status",
			"fulfillment_status", "total_price", "currency", "cancelled_at", "payload",
		)).
		Create(order).Error
}

func (r *repository) UpsertProduct(ctx context.Context, product *models.ChannelProduct) error {
	return r.db.WithContext(ctx).
		Clauses(upsertOn(
			"title", "handle", "vendor", "product_type", "status", "tags", "is_active", "payload",
		)).
		Create(product).Error
}

func (r *repository) DeactivateProduct(ctx context.Context, externalID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ChannelProduct{}).
		Where("external_id = ?", externalID).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *repository) UpsertCustomer(ctx context.Context, customer *models.ChannelCustomer) error {
	return r.db.WithContext(ctx).
		Clauses(upsertOn(
			"email", "first_name", "last_name", "phone", "accepts_marketing", "total_spent", "orders_count", "payload",
		)).
		Create(customer).Error
}
