package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-sync/internal/alerts"
	"github.com/angelmondragon/inventory-sync/internal/channel"
	"github.com/angelmondragon/inventory-sync/internal/dispatch"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	pkgdb "github.com/angelmondragon/inventory-sync/pkg/db"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
	"github.com/angelmondragon/inventory-sync/pkg/metrics"
	"github.com/angelmondragon/inventory-sync/pkg/pagination"
)

const (
	defaultConflictAttempts = 5
	defaultWatchThreshold   = 5
	defaultLowStockLimit    = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type taskSubmitter interface {
	Submit(ctx context.Context, task dispatch.Task) error
}

type eventSink interface {
	Publish(ctx context.Context, route string, payload any) error
}

type quantityPusher interface {
	Push(ctx context.Context, itemID string, locationID *string, quantity int) channel.Result
}

// Service is the single write path for inventory quantities plus the read
// helpers built on top of the ledger.
type Service interface {
	ApplyQuantity(ctx context.Context, input ApplyQuantityInput) (*ledger.ApplyResult, error)
	BulkApply(ctx context.Context, inputs []ApplyQuantityInput) ([]BulkResult, error)
	GetQuantity(ctx context.Context, itemID string) (int, error)
	GetRecord(ctx context.Context, itemID string) (*models.InventoryRecord, error)
	ListLowStock(ctx context.Context, threshold int) ([]models.InventoryRecord, error)
	History(ctx context.Context, itemID string, params pagination.Params) (pagination.Page[models.InventoryLogEntry], error)
}

// ApplyQuantityInput sets an item's absolute quantity.
type ApplyQuantityInput struct {
	ItemID     string
	Quantity   int
	Source     enums.SyncSource
	Notes      string
	LocationID *string
}

// BulkResult is the per-item outcome of BulkApply.
type BulkResult struct {
	ItemID string
	Result *ledger.ApplyResult
	Err    error
}

// Deps wires the collaborators. Pusher, Cache and Revalidator are optional;
// a nil value turns the matching side effect off.
type Deps struct {
	Repo        ledger.Repository
	Tx          txRunner
	Dispatcher  taskSubmitter
	Sink        eventSink
	Pusher      quantityPusher
	Cache       quantityCache
	Revalidator revalidator
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
}

// Options tune thresholds and timing.
type Options struct {
	Thresholds       alerts.Thresholds
	WatchThreshold   int
	CacheTTL         time.Duration
	ConflictAttempts int
	ConflictBackoff  time.Duration
}

type service struct {
	repo        ledger.Repository
	tx          txRunner
	dispatcher  taskSubmitter
	sink        eventSink
	pusher      quantityPusher
	cache       quantityCache
	revalidator revalidator
	logger      *logger.Logger
	metrics     *metrics.LedgerMetrics
	opts        Options
	reads       singleflight.Group
	now         func() time.Time
}

// NewService builds the sync engine.
func NewService(deps Deps, opts Options) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("automation sink required")
	}
	if opts.Thresholds == (alerts.Thresholds{}) {
		opts.Thresholds = alerts.DefaultThresholds()
	}
	if opts.WatchThreshold <= 0 {
		opts.WatchThreshold = defaultWatchThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.ConflictAttempts <= 0 {
		opts.ConflictAttempts = defaultConflictAttempts
	}
	if opts.ConflictBackoff <= 0 {
		opts.ConflictBackoff = 10 * time.Millisecond
	}
	return &service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		dispatcher:  deps.Dispatcher,
		sink:        deps.Sink,
		pusher:      deps.Pusher,
		cache:       deps.Cache,
		revalidator: deps.Revalidator,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) ApplyQuantity(ctx context.Context, input ApplyQuantityInput) (*ledger.ApplyResult, error) {
	input.ItemID = strings.TrimSpace(input.ItemID)
	if input.ItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sync source")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if strings.TrimSpace(input.Notes) == "" {
		input.Notes = fmt.Sprintf("Inventory updated via %s", input.Source)
	}

	result, err := s.commit(ctx, input)
	if err != nil {
		return nil, err
	}
	s.metrics.IncApply(string(input.Source))

	if s.logger != nil {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"item_id":           input.ItemID,
			"source":            string(input.Source),
			"previous_quantity": result.PreviousQuantity(),
			"quantity":          result.Record.AvailableQuantity,
		})
		s.logger.Info(logCtx, "inventory quantity applied")
	}

	s.fanOut(ctx, result)
	return result, nil
}

// commit runs the ledger write in its own transaction, retrying when a
// concurrent writer bumps the version first or Postgres aborts the
// transaction with a serialization failure or deadlock.
func (s *service) commit(ctx context.Context, input ApplyQuantityInput) (*ledger.ApplyResult, error) {
	var result *ledger.ApplyResult
	backoff := retry.NewConstant(s.opts.ConflictBackoff)
	if jitter := s.opts.ConflictBackoff / 2; jitter > 0 {
		backoff = retry.WithJitter(jitter, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(s.opts.ConflictAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			res, err := s.repo.WithTx(tx).Apply(ctx, ledger.ApplyInput{
				ItemID:     input.ItemID,
				Quantity:   input.Quantity,
				Source:     input.Source,
				Notes:      input.Notes,
				LocationID: input.LocationID,
			})
			if err != nil {
				if errors.Is(err, ledger.ErrVersionConflict) {
					s.metrics.IncConflict()
					return retry.RetryableError(err)
				}
				if pkgerrors.IsTransientDB(err) {
					return retry.RetryableError(err)
				}
				return err
			}
			result = res
			return nil
		})
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, ledger.ErrVersionConflict):
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "inventory record changed concurrently, retry the update")
	case errors.Is(err, ledger.ErrNegativeQuantity):
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "quantity cannot be negative")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory update interrupted")
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist inventory quantity")
	}
}

// BulkApply applies every input independently; one failure does not stop
// the others. The returned error aggregates the failures.
func (s *service) BulkApply(ctx context.Context, inputs []ApplyQuantityInput) ([]BulkResult, error) {
	results := make([]BulkResult, len(inputs))
	var errs error
	for i, input := range inputs {
		res, err := s.ApplyQuantity(ctx, input)
		results[i] = BulkResult{ItemID: strings.TrimSpace(input.ItemID), Result: res, Err: err}
		if err != nil {
			errs = appendBulkError(errs, input.ItemID, err)
		}
	}
	return results, errs
}

func (s *service) GetRecord(ctx context.Context, itemID string) (*models.InventoryRecord, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	record, err := s.repo.FindByItemID(ctx, itemID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	return record, nil
}

func (s *service) ListLowStock(ctx context.Context, threshold int) ([]models.InventoryRecord, error) {
	if threshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "threshold cannot be negative")
	}
	if threshold == 0 {
		threshold = s.opts.Thresholds.LowStock
	}
	records, err := s.repo.ListLowStock(ctx, threshold, defaultLowStockLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock")
	}
	return records, nil
}

func (s *service) History(ctx context.Context, itemID string, params pagination.Params) (pagination.Page[models.InventoryLogEntry], error) {
	var page pagination.Page[models.InventoryLogEntry]
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return page, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	entries, next, err := s.repo.ListLogEntries(ctx, itemID, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return page, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory log")
	}
	page.Items = entries
	page.NextCursor = next
	return page, nil
}
