package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/inventory-sync/internal/alerts"
	"github.com/angelmondragon/inventory-sync/internal/automation"
	"github.com/angelmondragon/inventory-sync/internal/dispatch"
	"github.com/angelmondragon/inventory-sync/internal/ledger"
	"github.com/angelmondragon/inventory-sync/pkg/enums"
)

// WatchEvent is the coarse "keep an eye on this item" signal sent when the
// quantity drops under the watch threshold.
type WatchEvent struct {
	ItemID       string    `json:"itemId"`
	CurrentStock int       `json:"currentStock"`
	Threshold    int       `json:"threshold"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
}

// fanOut queues the post-commit side effects. Nothing here can fail the
// caller: the ledger write already happened.
func (s *service) fanOut(ctx context.Context, result *ledger.ApplyResult) {
	record := result.Record
	itemID := record.ItemID
	qty := record.AvailableQuantity
	now := s.now()

	if event := alerts.Evaluate(itemID, qty, s.opts.Thresholds); event != nil {
		event.Timestamp = now
		s.submit(ctx, dispatch.Task{
			Kind:    enums.DispatchTaskAlert,
			ItemID:  itemID,
			Payload: event,
			Run: func(ctx context.Context) error {
				return s.sink.Publish(ctx, automation.RouteInventoryAlert, event)
			},
		})
	}

	if s.pusher != nil && record.LastSyncSource.IsLocal() {
		location := record.LocationID
		s.submit(ctx, dispatch.Task{
			Kind:    enums.DispatchTaskChannelPush,
			ItemID:  itemID,
			Payload: map[string]any{"itemId": itemID, "locationId": location, "available": qty},
			Run: func(ctx context.Context) error {
				res := s.pusher.Push(ctx, itemID, location, qty)
				if res.OK {
					return nil
				}
				if !res.Retryable {
					return dispatch.Permanent(res.Err)
				}
				return res.Err
			},
		})
	}

	if qty < s.opts.WatchThreshold {
		watch := WatchEvent{
			ItemID:       itemID,
			CurrentStock: qty,
			Threshold:    s.opts.WatchThreshold,
			Source:       string(record.LastSyncSource),
			Timestamp:    now,
		}
		s.submit(ctx, dispatch.Task{
			Kind:    enums.DispatchTaskLowStockWatch,
			ItemID:  itemID,
			Payload: watch,
			Run: func(ctx context.Context) error {
				return s.sink.Publish(ctx, automation.RouteLowStock, watch)
			},
		})
	}

	if s.cache != nil || s.revalidator != nil {
		s.submit(ctx, dispatch.Task{
			Kind:    enums.DispatchTaskCacheInvalidate,
			ItemID:  itemID,
			Payload: map[string]any{"tags": cacheTags(itemID)},
			Run: func(ctx context.Context) error {
				return s.invalidate(ctx, itemID)
			},
		})
	}
}

func (s *service) submit(ctx context.Context, task dispatch.Task) {
	if err := s.dispatcher.Submit(ctx, task); err != nil && s.logger != nil {
		logCtx := s.logger.WithFields(ctx, map[string]any{
			"item_id": task.ItemID,
			"task":    string(task.Kind),
		})
		s.logger.Warn(logCtx, "side effect not queued: "+err.Error())
	}
}

func appendBulkError(errs error, itemID string, err error) error {
	return multierr.Append(errs, fmt.Errorf("%s: %w", itemID, err))
}
