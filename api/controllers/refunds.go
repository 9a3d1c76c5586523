package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/KTAKhang/SEP490-Group10-sub002/api/controllers/callercontext"
	"github.com/KTAKhang/SEP490-Group10-sub002/api/responses"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

// RefundRetrier puts a failed refund back on the worker queue.
type RefundRetrier interface {
	RetryRefund(ctx context.Context, admin history.Actor, refundID uuid.UUID) (*models.Payment, error)
}

type refundResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderID         uuid.UUID           `json:"order_id"`
	ParentPaymentID *uuid.UUID          `json:"parent_payment_id,omitempty"`
	Status          enums.PaymentStatus `json:"status"`
	Amount          string              `json:"amount"`
	TxnRef          string              `json:"txn_ref"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// AdminRetryRefund requeues a REFUND_FAILED refund.
func AdminRetryRefund(svc RefundRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		actor, err := callercontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		refundID, err := callercontext.URLParamUUID(r, "refundID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.RetryRefund(r.Context(), actor, refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, refundResponse{
			ID:              refund.ID,
			OrderID:         refund.OrderID,
			ParentPaymentID: refund.ParentPaymentID,
			Status:          refund.Status,
			Amount:          refund.Amount.StringFixed(2),
			TxnRef:          refund.TxnRef,
			UpdatedAt:       refund.UpdatedAt,
		})
	}
}
