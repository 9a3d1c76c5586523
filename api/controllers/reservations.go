package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/callercontext"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/validators"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

// ReservationService is the hold surface the storefront exposes.
type ReservationService interface {
	Reserve(ctx context.Context, shopperID, productID uuid.UUID, qty int, sessionID string) (*models.StockLock, error)
	Release(ctx context.Context, shopperID, productID uuid.UUID) error
	ListActive(ctx context.Context, shopperID uuid.UUID) ([]models.StockLock, error)
}

type reserveRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=1000"`
	SessionID string    `json:"session_id" validate:"max=128"`
}

type reservationResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newReservationResponse(lock models.StockLock) reservationResponse {
	return reservationResponse{
		ID:        lock.ID,
		ProductID: lock.ProductID,
		Quantity:  lock.Quantity,
		SessionID: lock.SessionID,
		ExpiresAt: lock.ExpiresAt,
	}
}

// ReserveStock places or resizes the caller's hold on one product.
func ReserveStock(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lock, err := svc.Reserve(r.Context(), shopperID, payload.ProductID, payload.Quantity, validators.SanitizeString(payload.SessionID, 128))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReservationResponse(*lock))
	}
}

// ReleaseStock drops the caller's hold on the product in the path.
func ReleaseStock(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := callercontext.URLParamUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Release(r.Context(), shopperID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"product_id": productID, "released": true})
	}
}

// ListReservations returns the caller's live holds.
func ListReservations(svc ReservationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		locks, err := svc.ListActive(r.Context(), shopperID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]reservationResponse, 0, len(locks))
		for _, lock := range locks {
			out = append(out, newReservationResponse(lock))
		}
		responses.WriteSuccess(w, out)
	}
}
