package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/callercontext"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/validators"
	checkoutsvc "github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout/helpers"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

type checkoutReceiver struct {
	Name    string `json:"name" validate:"max=128"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=512"`
}

type checkoutRequest struct {
	ProductIDs    []uuid.UUID      `json:"product_ids" validate:"max=100"`
	Receiver      checkoutReceiver `json:"receiver"`
	Note          string           `json:"note" validate:"max=1000"`
	PaymentMethod string           `json:"payment_method" validate:"required,payment_method"`
}

// Checkout turns the caller's selected cart lines and live holds into one order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		shopperID, err := callercontext.ResolveShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method").
				WithDetails(map[string]any{"field": "payment_method"}))
			return
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			Shopper:            shopperID,
			SelectedProductIDs: payload.ProductIDs,
			Receiver: helpers.Receiver{
				Name:    payload.Receiver.Name,
				Phone:   payload.Receiver.Phone,
				Address: payload.Receiver.Address,
			},
			Note:          validators.SanitizeString(payload.Note, 1000),
			PaymentMethod: method,
			ClientIP:      callercontext.ClientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
