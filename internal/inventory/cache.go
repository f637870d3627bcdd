package inventory

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgdb "github.com/angelmondragon/inventory-sync/pkg/db"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
)

// Invalidation parks a marker on the key instead of deleting it so a read
// that loaded the old row before the write cannot refill the cache with it.
const (
	staleMarker      = "stale"
	invalidationHold = 5 * time.Second
)

type quantityCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ItemQuantityKey(itemID string) string
}

// GetQuantity returns the item's available quantity, 0 when the item has
// never been seen. Reads go through Redis; concurrent misses for the same
// item share one database query.
func (s *service) GetQuantity(ctx context.Context, itemID string) (int, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	if qty, ok := s.cachedQuantity(ctx, itemID); ok {
		return qty, nil
	}

	v, err, _ := s.reads.Do(itemID, func() (any, error) {
		record, err := s.repo.FindByItemID(ctx, itemID)
		if err != nil {
			if pkgdb.IsNotFound(err) {
				return 0, nil
			}
			return 0, err
		}
		return record.AvailableQuantity, nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory quantity")
	}

	qty := v.(int)
	s.storeQuantity(ctx, itemID, qty)
	return qty, nil
}

func (s *service) cachedQuantity(ctx context.Context, itemID string) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	raw, err := s.cache.Get(ctx, s.cache.ItemQuantityKey(itemID))
	if err != nil {
		if !errors.Is(err, goredis.Nil) && s.logger != nil {
			s.logger.Warn(s.logger.WithItemID(ctx, itemID), "inventory cache read failed: "+err.Error())
		}
		return 0, false
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return qty, true
}

func (s *service) storeQuantity(ctx context.Context, itemID string, qty int) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.SetNX(ctx, s.cache.ItemQuantityKey(itemID), strconv.Itoa(qty), s.opts.CacheTTL); err != nil && s.logger != nil {
		s.logger.Warn(s.logger.WithItemID(ctx, itemID), "inventory cache write failed: "+err.Error())
	}
}

// invalidate replaces the cached quantity with the stale marker and asks
// the storefront to revalidate the pages tagged with the item.
func (s *service) invalidate(ctx context.Context, itemID string) error {
	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.ItemQuantityKey(itemID), staleMarker, invalidationHold); err != nil {
			return err
		}
	}
	if s.revalidator != nil {
		return s.revalidator.Revalidate(ctx, cacheTags(itemID))
	}
	return nil
}

func cacheTags(itemID string) []string {
	return []string{"inventory", "inventory-" + itemID}
}
