package refunds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
)

// Service is the admin surface over refund rows.
type Service interface {
	RetryRefund(ctx context.Context, admin history.Actor, refundID uuid.UUID) (*models.Payment, error)
}

type service struct {
	db   txDB
	logg *logger.Logger
}

func NewService(conn txDB, logg *logger.Logger) (Service, error) {
	if conn == nil {
		return nil, errors.New("database client is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{db: conn, logg: logg}, nil
}

// RetryRefund requeues a REFUND_FAILED row for the worker. Only one refund
// per order may be open at a time.
func (s *service) RetryRefund(ctx context.Context, admin history.Actor, refundID uuid.UUID) (*models.Payment, error) {
	if admin.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	var refund models.Payment
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Where("id = ? AND type = ?", refundID, enums.PaymentTypeRefund).
			Take(&refund).Error; err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
		}
		if refund.Status != enums.PaymentStatusRefundFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only failed refunds can be retried").
				WithDetails(map[string]any{"refund_id": refund.ID, "status": refund.Status})
		}

		var open int64
		if err := tx.WithContext(ctx).Model(&models.Payment{}).
			Where("order_id = ? AND type = ? AND status IN ?", refund.OrderID, enums.PaymentTypeRefund, payments.OpenRefundStatuses).
			Count(&open).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check open refunds")
		}
		if open > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "another refund for this order is already queued")
		}

		ok, err := payments.Transition(ctx, tx, enums.PaymentTypeRefund, refund.ID,
			enums.PaymentStatusRefundFailed, enums.PaymentStatusPending, map[string]any{
				"failure_reason": nil,
				"response_code":  nil,
			})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund changed concurrently")
		}
		refund.Status = enums.PaymentStatusPending
		refund.FailureReason = nil
		refund.ResponseCode = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"refund_id": refund.ID.String(), "order_id": refund.OrderID.String()}
	if admin.ID != nil {
		fields["admin_id"] = admin.ID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "refund requeued")
	return &refund, nil
}
