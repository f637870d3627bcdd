package reservations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgdb "github.com/angelmondragon/inventory-sync/pkg/db"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

// DefaultTTL is how long a checkout hold lives without a release.
const DefaultTTL = 15 * time.Minute

type quantityReader interface {
	FindByItemID(ctx context.Context, itemID string) (*models.InventoryRecord, error)
}

// Service manages advisory checkout holds. Holds are checked against the
// ledger's current quantity and never decrement it.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error)
	Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	SweepExpired(ctx context.Context) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ActiveQuantity(ctx context.Context, itemID string) (int, error)
}

type ReserveInput struct {
	ItemID   string
	Quantity int
	OrderID  string
}

// ReserveResult carries Reserved=false with the observed quantity when the
// request exceeds what is available.
type ReserveResult struct {
	Reserved    bool
	Available   int
	Reservation *models.Reservation
}

type service struct {
	repo      Repository
	inventory quantityReader
	ttl       time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, inventory quantityReader, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory reader required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{
		repo:      repo,
		inventory: inventory,
		ttl:       ttl,
		logger:    logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*ReserveResult, error) {
	input.ItemID = strings.TrimSpace(input.ItemID)
	input.OrderID = strings.TrimSpace(input.OrderID)
	if input.ItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}

	available := 0
	record, err := s.inventory.FindByItemID(ctx, input.ItemID)
	switch {
	case err == nil:
		available = record.AvailableQuantity
	case pkgdb.IsNotFound(err):
		// never seen: nothing to reserve against
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}

	if input.Quantity > available {
		if s.logger != nil {
			logCtx := s.logger.WithFields(s.logger.WithOrderID(ctx, input.OrderID), map[string]any{
				"item_id":   input.ItemID,
				"requested": input.Quantity,
				"available": available,
			})
			s.logger.Info(logCtx, "reservation rejected: insufficient stock")
		}
		return &ReserveResult{Reserved: false, Available: available}, nil
	}

	now := s.now()
	reservation := &models.Reservation{
		ItemID:     input.ItemID,
		OrderID:    input.OrderID,
		Quantity:   input.Quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, reservation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
	}
	if s.logger != nil {
		logCtx := s.logger.WithReservationID(s.logger.WithOrderID(s.logger.WithItemID(ctx, input.ItemID), input.OrderID), reservation.ID.String())
		s.logger.Debug(s.logger.WithField(logCtx, "quantity", input.Quantity), "reservation created")
	}
	return &ReserveResult{Reserved: true, Available: available, Reservation: reservation}, nil
}

// Release ends the hold. Releasing twice, or after the sweep got there
// first, returns the row unchanged.
func (s *service) Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	released, err := s.repo.MarkReleased(ctx, id, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
	}
	if released > 0 && s.logger != nil {
		s.logger.Debug(s.logger.WithReservationID(ctx, id.String()), "reservation released")
	}
	return s.Get(ctx, id)
}

func (s *service) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.ReleaseExpired(ctx, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release expired reservations")
	}
	return count, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return reservation, nil
}

func (s *service) ActiveQuantity(ctx context.Context, itemID string) (int, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	total, err := s.repo.SumActive(ctx, itemID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum active reservations")
	}
	return total, nil
}
