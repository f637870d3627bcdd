package reservations

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/inventory-sync/api/responses"
	"github.com/angelmondragon/inventory-sync/api/validators"
	reservationsvc "github.com/angelmondragon/inventory-sync/internal/reservations"
	"github.com/angelmondragon/inventory-sync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

const insufficientStockMessage = "insufficient stock, please reduce quantity"

type reserver interface {
	Reserve(ctx context.Context, input reservationsvc.ReserveInput) (*reservationsvc.ReserveResult, error)
}

type reservationReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

type releaser interface {
	Release(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

type activeCounter interface {
	ActiveQuantity(ctx context.Context, itemID string) (int, error)
}

type reservationResponse struct {
	ID         uuid.UUID  `json:"id"`
	ItemID     string     `json:"itemId"`
	OrderID    string     `json:"orderId"`
	Quantity   int        `json:"quantity"`
	Status     string     `json:"status"`
	ReservedAt time.Time  `json:"reservedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Released   bool       `json:"released"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

func newReservationResponse(r *models.Reservation, now time.Time) reservationResponse {
	status := "active"
	switch {
	case r.Released:
		status = "released"
	case !r.Active(now):
		status = "expired"
	}
	return reservationResponse{
		ID:         r.ID,
		ItemID:     r.ItemID,
		OrderID:    r.OrderID,
		Quantity:   r.Quantity,
		Status:     status,
		ReservedAt: r.ReservedAt,
		ExpiresAt:  r.ExpiresAt,
		Released:   r.Released,
		ReleasedAt: r.ReleasedAt,
	}
}

type reserveRequest struct {
	ItemID   string `json:"itemId" validate:"required,max=255"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	OrderID  string `json:"orderId" validate:"required,max=255"`
}

type reserveResponse struct {
	Reserved    bool                `json:"reserved"`
	Reservation reservationResponse `json:"reservation"`
}

// Reserve places an advisory hold. A request larger than the current
// quantity is answered with 409 INSUFFICIENT_STOCK.
func Reserve(svc reserver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reserve(r.Context(), reservationsvc.ReserveInput{
			ItemID:   payload.ItemID,
			Quantity: payload.Quantity,
			OrderID:  payload.OrderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Reserved {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInsufficient, insufficientStockMessage).
				WithDetails(map[string]any{
					"itemId":    payload.ItemID,
					"requested": payload.Quantity,
					"available": result.Available,
				}))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, reserveResponse{
			Reserved:    true,
			Reservation: newReservationResponse(result.Reservation, time.Now()),
		})
	}
}

func Get(svc reservationReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		id, err := reservationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReservationResponse(reservation, time.Now()))
	}
}

// Release ends the hold; releasing an already released or expired hold
// returns it unchanged.
func Release(svc releaser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		id, err := reservationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Release(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReservationResponse(reservation, time.Now()))
	}
}

// Active reports the quantity held by unexpired reservations for an item.
func Active(svc activeCounter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
		total, err := svc.ActiveQuantity(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"itemId": itemID, "reservedQuantity": total})
	}
}

func reservationIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "reservationId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id")
	}
	return id, nil
}
