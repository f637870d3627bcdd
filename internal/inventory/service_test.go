package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/internal/alerts"
	"github.com/angelmondragon/inventory-sync/internal/automation"
	"github.com/angelmondragon/inventory-sync/internal/channel"
	"github.com/angelmondragon/inventory-sync/internal/dispatch"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	return fn(nil)
}

type fakeLedger struct {
	mu        sync.Mutex
	records   map[string]models.InventoryRecord
	entries   []models.InventoryLogEntry
	conflicts int
	transient int
	applyErr  error
	finds     int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]models.InventoryRecord{}}
}

func (f *fakeLedger) WithTx(*gorm.DB) ledger.Repository { return f }

func (f *fakeLedger) Apply(_ context.Context, input ledger.ApplyInput) (*ledger.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	if f.conflicts > 0 {
		f.conflicts--
		return nil, ledger.ErrVersionConflict
	}
	if f.transient > 0 {
		f.transient--
		return nil, fmt.Errorf("update inventory record: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	}
	current, existed := f.records[input.ItemID]
	previous := current.AvailableQuantity
	record := models.InventoryRecord{
		ItemID:            input.ItemID,
		AvailableQuantity: input.Quantity,
		LocationID:        input.LocationID,
		LastSyncSource:    input.Source,
		Version:           current.Version + 1,
	}
	f.records[input.ItemID] = record
	entry := models.InventoryLogEntry{
		ItemID:           input.ItemID,
		PreviousQuantity: previous,
		NewQuantity:      input.Quantity,
		Delta:            input.Quantity - previous,
		Source:           input.Source,
		Notes:            input.Notes,
	}
	f.entries = append(f.entries, entry)
	return &ledger.ApplyResult{Record: record, Entry: entry, Created: !existed}, nil
}

func (f *fakeLedger) FindByItemID(_ context.Context, itemID string) (*models.InventoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	record, ok := f.records[itemID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &record, nil
}

func (f *fakeLedger) ListLowStock(_ context.Context, threshold, _ int) ([]models.InventoryRecord, error) {
	var out []models.InventoryRecord
	for _, r := range f.records {
		if r.AvailableQuantity <= threshold {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListLogEntries(_ context.Context, itemID string, params pagination.Params) ([]models.InventoryLogEntry, string, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, "", err
	}
	var out []models.InventoryLogEntry
	for _, e := range f.entries {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, "", nil
}

func (f *fakeLedger) SumDeltas(_ context.Context, itemID string) (int, error) {
	total := 0
	for _, e := range f.entries {
		if e.ItemID == itemID {
			total += e.Delta
		}
	}
	return total, nil
}

type fakeDispatcher struct {
	tasks []dispatch.Task
	err   error
}

func (f *fakeDispatcher) Submit(_ context.Context, task dispatch.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeDispatcher) kinds() []enums.DispatchTaskKind {
	out := make([]enums.DispatchTaskKind, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.Kind)
	}
	return out
}

func (f *fakeDispatcher) find(kind enums.DispatchTaskKind) *dispatch.Task {
	for i := range f.tasks {
		if f.tasks[i].Kind == kind {
			return &f.tasks[i]
		}
	}
	return nil
}

type published struct {
	route   string
	payload any
}

type fakeSink struct {
	events []published
}

func (f *fakeSink) Publish(_ context.Context, route string, payload any) error {
	f.events = append(f.events, published{route: route, payload: payload})
	return nil
}

type fakePusher struct {
	calls  int
	result channel.Result
}

func (f *fakePusher) Push(context.Context, string, *string, int) channel.Result {
	f.calls++
	return f.result
}

type fakeCache struct {
	values map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{values: map[string]string{}} }

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeCache) ItemQuantityKey(itemID string) string { return "qty:" + itemID }

type harness struct {
	svc        Service
	ledger     *fakeLedger
	dispatcher *fakeDispatcher
	sink       *fakeSink
	pusher     *fakePusher
	cache      *fakeCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:     newFakeLedger(),
		dispatcher: &fakeDispatcher{},
		sink:       &fakeSink{},
		pusher:     &fakePusher{result: channel.Result{OK: true}},
		cache:      newFakeCache(),
	}
	svc, err := NewService(Deps{
		Repo:       h.ledger,
		Tx:         &fakeTx{},
		Dispatcher: h.dispatcher,
		Sink:       h.sink,
		Pusher:     h.pusher,
		Cache:      h.cache,
	}, Options{ConflictBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) runAll(t *testing.T) {
	t.Helper()
	for _, task := range h.dispatcher.tasks {
		if err := task.Run(context.Background()); err != nil {
			t.Fatalf("task %s failed: %v", task.Kind, err)
		}
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(Deps{}, Options{}); err == nil {
		t.Fatal("expected missing repo to fail")
	}
	if _, err := NewService(Deps{Repo: newFakeLedger(), Tx: &fakeTx{}, Dispatcher: &fakeDispatcher{}}, Options{}); err == nil {
		t.Fatal("expected missing sink to fail")
	}
}

func TestApplyQuantityValidation(t *testing.T) {
	h := newHarness(t)
	cases := []ApplyQuantityInput{
		{ItemID: " ", Quantity: 1, Source: enums.SyncSourceManual},
		{ItemID: "sku-1", Quantity: 1, Source: "warehouse"},
		{ItemID: "sku-1", Quantity: -1, Source: enums.SyncSourceManual},
	}
	for _, input := range cases {
		_, err := h.svc.ApplyQuantity(context.Background(), input)
		if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
	if len(h.ledger.entries) != 0 {
		t.Fatalf("expected no writes, got %d", len(h.ledger.entries))
	}
}

func TestApplyQuantityDefaultNotes(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 40, Source: enums.SyncSourceAutomation})
	if err != nil {
		t.Fatalf("ApplyQuantity: %v", err)
	}
	if res.Entry.Notes != "Inventory updated via automation" {
		t.Fatalf("unexpected notes %q", res.Entry.Notes)
	}
}

func TestApplyQuantityChannelSourceNeverPushes(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 5, Source: enums.SyncSourceChannel}); err != nil {
		t.Fatalf("ApplyQuantity: %v", err)
	}
	if h.dispatcher.find(enums.DispatchTaskChannelPush) != nil {
		t.Fatalf("channel-sourced change must not push back, tasks=%v", h.dispatcher.kinds())
	}

	if _, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 5, Source: enums.SyncSourceStorefront}); err != nil {
		t.Fatalf("ApplyQuantity: %v", err)
	}
	task := h.dispatcher.find(enums.DispatchTaskChannelPush)
	if task == nil {
		t.Fatalf("expected push task for storefront change, tasks=%v", h.dispatcher.kinds())
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("push task: %v", err)
	}
	if h.pusher.calls != 1 {
		t.Fatalf("expected one push, got %d", h.pusher.calls)
	}
}

func TestPushTaskFailureClassification(t *testing.T) {
	h := newHarness(t)
	h.pusher.result = channel.Result{Err: errors.New("404 not found")}
	if _, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 30, Source: enums.SyncSourceManual}); err != nil {
		t.Fatalf("ApplyQuantity: %v", err)
	}
	err := h.dispatcher.find(enums.DispatchTaskChannelPush).Run(context.Background())
	if !dispatch.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	h.pusher.result = channel.Result{Retryable: true, Err: errors.New("503")}
	err = h.dispatcher.find(enums.DispatchTaskChannelPush).Run(context.Background())
	if err == nil || dispatch.IsPermanent(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestApplyQuantityFanOutByBand(t *testing.T) {
	cases := []struct {
		name      string
		qty       int
		wantAlert enums.AlertType
		wantWatch bool
	}{
		{name: "out of stock", qty: 0, wantAlert: enums.AlertTypeOutOfStock, wantWatch: true},
		{name: "restock", qty: 2, wantAlert: enums.AlertTypeRestockNeeded, wantWatch: true},
		{name: "low stock under watch", qty: 4, wantAlert: enums.AlertTypeLowStock, wantWatch: true},
		{name: "low stock", qty: 8, wantAlert: enums.AlertTypeLowStock},
		{name: "healthy", qty: 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if _, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: tc.qty, Source: enums.SyncSourceChannel}); err != nil {
				t.Fatalf("ApplyQuantity: %v", err)
			}
			h.runAll(t)

			var gotAlert *alerts.Event
			gotWatch := false
			for _, ev := range h.sink.events {
				switch ev.route {
				case automation.RouteInventoryAlert:
					gotAlert = ev.payload.(*alerts.Event)
				case automation.RouteLowStock:
					gotWatch = true
				}
			}
			if tc.wantAlert == "" && gotAlert != nil {
				t.Fatalf("expected no alert, got %+v", gotAlert)
			}
			if tc.wantAlert != "" && (gotAlert == nil || gotAlert.AlertType != tc.wantAlert) {
				t.Fatalf("expected %s alert, got %+v", tc.wantAlert, gotAlert)
			}
			if gotWatch != tc.wantWatch {
				t.Fatalf("expected watch=%v, got %v", tc.wantWatch, gotWatch)
			}
			if h.dispatcher.find(enums.DispatchTaskCacheInvalidate) == nil {
				t.Fatal("expected cache invalidation task")
			}
		})
	}
}

func TestApplyQuantityRetriesVersionConflicts(t *testing.T) {
	h := newHarness(t)
	h.ledger.conflicts = 2
	res, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 12, Source: enums.SyncSourceManual})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if res.Record.AvailableQuantity != 12 {
		t.Fatalf("unexpected quantity %d", res.Record.AvailableQuantity)
	}
}

func TestApplyQuantityRetriesSerializationFailures(t *testing.T) {
	h := newHarness(t)
	h.ledger.transient = 1
	res, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 4, Source: enums.SyncSourceStorefront})
	if err != nil {
		t.Fatalf("expected success after a serialization retry, got %v", err)
	}
	if res.Record.AvailableQuantity != 4 || h.ledger.transient != 0 {
		t.Fatalf("unexpected result %+v (transient left %d)", res.Record, h.ledger.transient)
	}
}

func TestApplyQuantityGivesUpAfterConflictBudget(t *testing.T) {
	h := newHarness(t)
	h.ledger.conflicts = 100
	_, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 12, Source: enums.SyncSourceManual})
	if !pkgerrors.Is(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if got := 100 - h.ledger.conflicts; got != defaultConflictAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultConflictAttempts, got)
	}
	if len(h.dispatcher.tasks) != 0 {
		t.Fatal("failed write must not fan out")
	}
}

func TestApplyQuantityStoreFailureIsDependencyError(t *testing.T) {
	h := newHarness(t)
	h.ledger.applyErr = errors.New("connection refused")
	_, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 1, Source: enums.SyncSourceManual})
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestApplyQuantitySurvivesSubmitFailure(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = dispatch.ErrQueueFull
	if _, err := h.svc.ApplyQuantity(context.Background(), ApplyQuantityInput{ItemID: "sku-1", Quantity: 1, Source: enums.SyncSourceManual}); err != nil {
		t.Fatalf("side-effect failures must not surface, got %v", err)
	}
	if _, ok := h.ledger.records["sku-1"]; !ok {
		t.Fatal("expected ledger write to stand")
	}
}

func TestCheckoutScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.ApplyQuantity(ctx, ApplyQuantityInput{ItemID: "sku-1", Quantity: 20, Source: enums.SyncSourceManual}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := h.svc.ApplyQuantity(ctx, ApplyQuantityInput{ItemID: "sku-1", Quantity: 17, Source: enums.SyncSourceStorefront})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Entry.Delta != -3 {
		t.Fatalf("expected delta -3, got %d", res.Entry.Delta)
	}

	h.dispatcher.tasks = nil
	if _, err := h.svc.ApplyQuantity(ctx, ApplyQuantityInput{ItemID: "sku-1", Quantity: 17, Source: enums.SyncSourceChannel}); err != nil {
		t.Fatalf("channel echo: %v", err)
	}
	if h.dispatcher.find(enums.DispatchTaskChannelPush) != nil {
		t.Fatal("channel echo must not push back")
	}
	if h.dispatcher.find(enums.DispatchTaskAlert) != nil {
		t.Fatal("17 is above every alert threshold")
	}

	sum, _ := h.ledger.SumDeltas(ctx, "sku-1")
	if sum != 17 {
		t.Fatalf("log replay mismatch: %d", sum)
	}
}

func TestBulkApplyIsAllSettled(t *testing.T) {
	h := newHarness(t)
	results, err := h.svc.BulkApply(context.Background(), []ApplyQuantityInput{
		{ItemID: "sku-1", Quantity: 3, Source: enums.SyncSourceAutomation},
		{ItemID: "sku-2", Quantity: -2, Source: enums.SyncSourceAutomation},
		{ItemID: "sku-3", Quantity: 9, Source: enums.SyncSourceAutomation},
	})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("valid items should succeed: %+v", results)
	}
	if results[1].Err == nil {
		t.Fatal("negative quantity should fail")
	}
	if len(h.ledger.records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.ledger.records))
	}
}

func TestGetQuantityUsesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	qty, err := h.svc.GetQuantity(ctx, "unknown")
	if err != nil || qty != 0 {
		t.Fatalf("expected 0 for unknown item, got %d %v", qty, err)
	}

	h.ledger.records["sku-1"] = models.InventoryRecord{ItemID: "sku-1", AvailableQuantity: 7}
	qty, err = h.svc.GetQuantity(ctx, "sku-1")
	if err != nil || qty != 7 {
		t.Fatalf("expected 7, got %d %v", qty, err)
	}
	finds := h.ledger.finds

	qty, err = h.svc.GetQuantity(ctx, "sku-1")
	if err != nil || qty != 7 {
		t.Fatalf("expected cached 7, got %d %v", qty, err)
	}
	if h.ledger.finds != finds {
		t.Fatal("expected cache hit to skip the store")
	}
}

func TestCacheInvalidationDropsKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cache.values["qty:sku-1"] = "3"

	if _, err := h.svc.ApplyQuantity(ctx, ApplyQuantityInput{ItemID: "sku-1", Quantity: 30, Source: enums.SyncSourceChannel}); err != nil {
		t.Fatalf("ApplyQuantity: %v", err)
	}
	h.runAll(t)
	if got := h.cache.values["qty:sku-1"]; got != staleMarker {
		t.Fatalf("expected cached quantity to be replaced by the stale marker, got %q", got)
	}
	qty, err := h.svc.GetQuantity(ctx, "sku-1")
	if err != nil || qty != 30 {
		t.Fatalf("expected fresh 30 past the marker, got %d %v", qty, err)
	}
}

// writeDuringRead lands a write and its invalidation after the read has
// already loaded the old row.
type writeDuringRead struct {
	*fakeLedger
	svc *service
}

func (l *writeDuringRead) FindByItemID(ctx context.Context, itemID string) (*models.InventoryRecord, error) {
	record, err := l.fakeLedger.FindByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.records[itemID] = models.InventoryRecord{ItemID: itemID, AvailableQuantity: 3}
	l.mu.Unlock()
	if l.svc != nil {
		if err := l.svc.invalidate(ctx, itemID); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func TestGetQuantityDoesNotRefillCacheAfterConcurrentInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := &writeDuringRead{fakeLedger: newFakeLedger()}
	repo.records["sku-1"] = models.InventoryRecord{ItemID: "sku-1", AvailableQuantity: 7}
	cache := newFakeCache()
	svc, err := NewService(Deps{
		Repo:       repo,
		Tx:         &fakeTx{},
		Dispatcher: &fakeDispatcher{},
		Sink:       &fakeSink{},
		Cache:      cache,
	}, Options{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	repo.svc = svc.(*service)

	if qty, err := svc.GetQuantity(ctx, "sku-1"); err != nil || qty != 7 {
		t.Fatalf("expected the loaded 7, got %d %v", qty, err)
	}
	if got := cache.values["qty:sku-1"]; got != staleMarker {
		t.Fatalf("expected stale read to leave the marker in place, got %q", got)
	}

	repo.svc = nil
	repo.records["sku-1"] = models.InventoryRecord{ItemID: "sku-1", AvailableQuantity: 3}
	delete(cache.values, "qty:sku-1")
	if qty, err := svc.GetQuantity(ctx, "sku-1"); err != nil || qty != 3 {
		t.Fatalf("expected 3 once the marker expires, got %d %v", qty, err)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetRecord(context.Background(), "missing")
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.History(context.Background(), "sku-1", pagination.Params{Cursor: "%%%"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListLowStockDefaultsThreshold(t *testing.T) {
	h := newHarness(t)
	h.ledger.records["a"] = models.InventoryRecord{ItemID: "a", AvailableQuantity: 10}
	h.ledger.records["b"] = models.InventoryRecord{ItemID: "b", AvailableQuantity: 11}
	records, err := h.svc.ListLowStock(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(records) != 1 || records[0].ItemID != "a" {
		t.Fatalf("unexpected records %+v", records)
	}
}
