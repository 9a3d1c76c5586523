package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/callercontext"
	cartdto "github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/cart/dto"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/validators"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

// Service is the cart surface used by the handlers.
type Service interface {
	Upsert(ctx context.Context, userID, productID uuid.UUID, qty int) (*models.CartItem, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
}

// CartFetch returns the caller's cart lines.
func CartFetch(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), shopperID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartdto.NewCart(items))
	}
}

// CartUpsertItem sets or removes one cart line.
func CartUpsertItem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.UpsertItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Upsert(r.Context(), shopperID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if item == nil {
			responses.WriteSuccess(w, map[string]any{"product_id": payload.ProductID, "removed": true})
			return
		}
		responses.WriteSuccess(w, cartdto.NewCartItem(*item))
	}
}
