package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InventoryRecord{}, &models.InventoryLogEntry{}))
	return db
}

func newTestRepo(t *testing.T) (*repository, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return &repository{db: db, now: clock.Now}, db
}

func apply(t *testing.T, repo Repository, item string, qty int, source enums.SyncSource) *ApplyResult {
	t.Helper()
	res, err := repo.Apply(context.Background(), ApplyInput{ItemID: item, Quantity: qty, Source: source, Notes: "test"})
	require.NoError(t, err)
	return res
}

func TestApplyFirstSightCreatesRecordAndEntry(t *testing.T) {
	repo, db := newTestRepo(t)

	loc := "loc-1"
	res, err := repo.Apply(context.Background(), ApplyInput{
		ItemID:     "sku-1",
		Quantity:   20,
		Source:     enums.SyncSourceChannel,
		Notes:      "Inventory updated via channel",
		LocationID: &loc,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 20, res.Record.AvailableQuantity)
	assert.Equal(t, int64(1), res.Record.Version)
	assert.Equal(t, 0, res.PreviousQuantity())
	assert.Equal(t, 20, res.Entry.Delta)

	var stored models.InventoryRecord
	require.NoError(t, db.First(&stored, "item_id = ?", "sku-1").Error)
	assert.Equal(t, enums.SyncSourceChannel, stored.LastSyncSource)
	require.NotNil(t, stored.LocationID)
	assert.Equal(t, "loc-1", *stored.LocationID)
}

func TestApplyUpdatesBumpVersionAndKeepLocation(t *testing.T) {
	repo, _ := newTestRepo(t)
	loc := "loc-1"
	_, err := repo.Apply(context.Background(), ApplyInput{ItemID: "sku-1", Quantity: 20, Source: enums.SyncSourceChannel, LocationID: &loc})
	require.NoError(t, err)

	res := apply(t, repo, "sku-1", 17, enums.SyncSourceStorefront)
	assert.False(t, res.Created)
	assert.Equal(t, int64(2), res.Record.Version)
	assert.Equal(t, 20, res.PreviousQuantity())
	assert.Equal(t, -3, res.Entry.Delta)
	require.NotNil(t, res.Record.LocationID)
	assert.Equal(t, "loc-1", *res.Record.LocationID)
	assert.Equal(t, enums.SyncSourceStorefront, res.Record.LastSyncSource)
}

func TestApplyRejectsNegativeQuantity(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Apply(context.Background(), ApplyInput{ItemID: "sku-1", Quantity: -1, Source: enums.SyncSourceManual})
	assert.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestApplyDetectsStaleVersion(t *testing.T) {
	repo, db := newTestRepo(t)
	first := apply(t, repo, "sku-1", 5, enums.SyncSourceManual)
	apply(t, repo, "sku-1", 6, enums.SyncSourceChannel)

	// first.Record carries version 1; the row is now at version 2.
	_, err := repo.updateIfVersion(db, ApplyInput{ItemID: "sku-1", Quantity: 9, Source: enums.SyncSourceManual}, first.Record, repo.now())
	assert.ErrorIs(t, err, ErrVersionConflict)

	rec, err := repo.FindByItemID(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 6, rec.AvailableQuantity)

	var entries int64
	require.NoError(t, db.Model(&models.InventoryLogEntry{}).Where("item_id = ?", "sku-1").Count(&entries).Error)
	assert.Equal(t, int64(2), entries)
}

func TestInsertFirstLosesToConcurrentCreate(t *testing.T) {
	repo, db := newTestRepo(t)
	apply(t, repo, "sku-1", 5, enums.SyncSourceChannel)

	_, err := repo.insertFirst(db, ApplyInput{ItemID: "sku-1", Quantity: 3, Source: enums.SyncSourceStorefront}, repo.now())
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestLogReplayMatchesCurrentQuantity(t *testing.T) {
	repo, _ := newTestRepo(t)
	for _, qty := range []int{20, 17, 0, 4, 4, 31} {
		apply(t, repo, "sku-1", qty, enums.SyncSourceStorefront)
	}

	sum, err := repo.SumDeltas(context.Background(), "sku-1")
	require.NoError(t, err)
	rec, err := repo.FindByItemID(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, rec.AvailableQuantity, sum)
	assert.Equal(t, 31, sum)
}

func TestFindByItemIDMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.FindByItemID(context.Background(), "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListLowStockOrdersAscending(t *testing.T) {
	repo, _ := newTestRepo(t)
	apply(t, repo, "sku-a", 8, enums.SyncSourceChannel)
	apply(t, repo, "sku-b", 0, enums.SyncSourceChannel)
	apply(t, repo, "sku-c", 50, enums.SyncSourceChannel)
	apply(t, repo, "sku-d", 10, enums.SyncSourceChannel)
	apply(t, repo, "sku-e", 2, enums.SyncSourceChannel)

	records, err := repo.ListLowStock(context.Background(), 10, 0)
	require.NoError(t, err)

	var got []string
	for _, r := range records {
		got = append(got, r.ItemID)
	}
	assert.Equal(t, []string{"sku-b", "sku-e", "sku-a", "sku-d"}, got)

	limited, err := repo.ListLowStock(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListLogEntriesPaginatesNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	for _, qty := range []int{1, 2, 3, 4, 5} {
		apply(t, repo, "sku-1", qty, enums.SyncSourceManual)
	}
	apply(t, repo, "sku-2", 9, enums.SyncSourceManual)

	page, next, err := repo.ListLogEntries(context.Background(), "sku-1", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 5, page[0].NewQuantity)
	assert.Equal(t, 4, page[1].NewQuantity)
	require.NotEmpty(t, next)

	page, next, err = repo.ListLogEntries(context.Background(), "sku-1", pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 3, page[0].NewQuantity)
	assert.Equal(t, 2, page[1].NewQuantity)

	page, next, err = repo.ListLogEntries(context.Background(), "sku-1", pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 1, page[0].NewQuantity)
	assert.Empty(t, next)
}

func TestListLogEntriesRejectsBadCursor(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, _, err := repo.ListLogEntries(context.Background(), "sku-1", pagination.Params{Cursor: "%%%"})
	assert.Error(t, err)
}

func TestWriteErrorMapsCheckViolation(t *testing.T) {
	err := writeError("update inventory record", &pgconn.PgError{Code: "23514", ConstraintName: "inventory_records_available_non_negative"})
	assert.ErrorIs(t, err, ErrNegativeQuantity)

	err = writeError("update inventory record", gorm.ErrInvalidTransaction)
	assert.ErrorIs(t, err, gorm.ErrInvalidTransaction)
	assert.NotErrorIs(t, err, ErrNegativeQuantity)
}
