package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgdb "github.com/angelmondragon/inventory-sync/pkg/db"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

var (
	// ErrVersionConflict means another writer changed the record between the
	// read and the conditional write. The caller should retry the whole
	// transaction.
	ErrVersionConflict  = errors.New("inventory record version conflict")
	ErrNegativeQuantity = errors.New("inventory quantity cannot be negative")
)

// ApplyInput is an absolute quantity set for one item.
type ApplyInput struct {
	ItemID     string
	Quantity   int
	Source     enums.SyncSource
	Notes      string
	LocationID *string
}

// ApplyResult is the committed record plus the log entry written with it.
type ApplyResult struct {
	Record  models.InventoryRecord
	Entry   models.InventoryLogEntry
	Created bool
}

func (r ApplyResult) PreviousQuantity() int { return r.Entry.PreviousQuantity }

// Repository manages the inventory records and their change log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error)
	FindByItemID(ctx context.Context, itemID string) (*models.InventoryRecord, error)
	ListLowStock(ctx context.Context, threshold, limit int) ([]models.InventoryRecord, error)
	ListLogEntries(ctx context.Context, itemID string, params pagination.Params) ([]models.InventoryLogEntry, string, error)
	SumDeltas(ctx context.Context, itemID string) (int, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

// Apply sets the item's quantity and appends the matching log entry. It is
// meant to run inside a transaction: the record write is conditional on the
// version read at the start, so a concurrent writer surfaces as
// ErrVersionConflict instead of a lost update.
func (r *repository) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	if input.Quantity < 0 {
		return nil, ErrNegativeQuantity
	}
	db := r.db.WithContext(ctx)
	now := r.now()

	var current models.InventoryRecord
	err := db.Where("item_id = ?", input.ItemID).Take(&current).Error
	switch {
	case pkgdb.IsNotFound(err):
		return r.insertFirst(db, input, now)
	case err != nil:
		return nil, fmt.Errorf("load inventory record: %w", err)
	}

	return r.updateIfVersion(db, input, current, now)
}

func (r *repository) updateIfVersion(db *gorm.DB, input ApplyInput, current models.InventoryRecord, now time.Time) (*ApplyResult, error) {
	location := current.LocationID
	if input.LocationID != nil {
		location = input.LocationID
	}

	res := db.Model(&models.InventoryRecord{}).
		Where("item_id = ? AND version = ?", input.ItemID, current.Version).
		Updates(map[string]any{
			"available_quantity": input.Quantity,
			"location_id":        location,
			"last_sync_source":   input.Source,
			"version":            current.Version + 1,
			"updated_at":         now,
		})
	if res.Error != nil {
		return nil, writeError("update inventory record", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}

	record := current
	record.AvailableQuantity = input.Quantity
	record.LocationID = location
	record.LastSyncSource = input.Source
	record.Version = current.Version + 1
	record.UpdatedAt = now

	entry, err := r.appendEntry(db, input, current.AvailableQuantity, now)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{Record: record, Entry: *entry}, nil
}

func (r *repository) insertFirst(db *gorm.DB, input ApplyInput, now time.Time) (*ApplyResult, error) {
	record := models.InventoryRecord{
		ItemID:            input.ItemID,
		AvailableQuantity: input.Quantity,
		LocationID:        input.LocationID,
		LastSyncSource:    input.Source,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return nil, writeError("insert inventory record", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else created the row first.
		return nil, ErrVersionConflict
	}

	entry, err := r.appendEntry(db, input, 0, now)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{Record: record, Entry: *entry, Created: true}, nil
}

func (r *repository) appendEntry(db *gorm.DB, input ApplyInput, previous int, now time.Time) (*models.InventoryLogEntry, error) {
	entry := &models.InventoryLogEntry{
		ItemID:           input.ItemID,
		PreviousQuantity: previous,
		NewQuantity:      input.Quantity,
		Delta:            input.Quantity - previous,
		Source:           input.Source,
		Notes:            input.Notes,
		CreatedAt:        now,
	}
	if err := db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("append inventory log entry: %w", err)
	}
	return entry, nil
}

// writeError maps the table's non-negative CHECK onto ErrNegativeQuantity so
// callers see the same error whichever layer caught it.
func writeError(op string, err error) error {
	if pkgdb.IsCheckViolation(err, "") {
		return fmt.Errorf("%s: %w", op, ErrNegativeQuantity)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *repository) FindByItemID(ctx context.Context, itemID string) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	if err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Take(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListLowStock(ctx context.Context, threshold, limit int) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	query := r.db.WithContext(ctx).
		Where("available_quantity <= ?", threshold).
		Order("available_quantity ASC").
		Order("item_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListLogEntries returns an item's entries newest first along with the cursor
// for the next page ("" when there is none).
func (r *repository) ListLogEntries(ctx context.Context, itemID string, params pagination.Params) ([]models.InventoryLogEntry, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var entries []models.InventoryLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Paginate(entries, params.Limit, func(e models.InventoryLogEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}

// SumDeltas replays the log for an item. It always equals the record's
// current quantity.
func (r *repository) SumDeltas(ctx context.Context, itemID string) (int, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryLogEntry{}).
		Where("item_id = ?", itemID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}
