package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

// OpenRefundStatuses are the REFUND states that count as outstanding. An
// order has at most one refund in any of them.
var OpenRefundStatuses = []enums.PaymentStatus{
	enums.PaymentStatusPending,
	enums.PaymentStatusProcessing,
	enums.PaymentStatusRefundPending,
}

// RequestRefund queues a REFUND row for the order's settled gateway charge.
// It never calls the gateway; the refund worker does. When a refund is
// already outstanding that row is returned and created is false.
func RequestRefund(ctx context.Context, tx *gorm.DB, order models.Order) (refund *models.Payment, created bool, err error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for refund request")
	}

	var parent models.Payment
	err = tx.WithContext(ctx).
		Where("order_id = ? AND type = ? AND method = ? AND status = ?",
			order.ID, enums.PaymentTypePayment, enums.PaymentMethodGateway, enums.PaymentStatusSuccess).
		Order("created_at DESC").
		Take(&parent).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no settled gateway payment to refund")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settled payment")
	}

	return RefundCharge(ctx, tx, order, parent)
}

// RefundCharge queues a REFUND row against one specific settled charge. It
// shares RequestRefund's one-outstanding-refund rule.
func RefundCharge(ctx context.Context, tx *gorm.DB, order models.Order, parent models.Payment) (refund *models.Payment, created bool, err error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for refund request")
	}
	if parent.Type != enums.PaymentTypePayment || parent.Status != enums.PaymentStatusSuccess || parent.OrderID != order.ID {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "refund parent must be a settled charge of the order")
	}

	var existing models.Payment
	err = tx.WithContext(ctx).
		Where("order_id = ? AND type = ? AND status IN ?", order.ID, enums.PaymentTypeRefund, OpenRefundStatuses).
		Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !db.IsNotFound(err) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check outstanding refund")
	}

	parentID := parent.ID
	row := models.Payment{
		OrderID:         order.ID,
		UserID:          order.UserID,
		ParentPaymentID: &parentID,
		Type:            enums.PaymentTypeRefund,
		Method:          enums.PaymentMethodGateway,
		Status:          enums.PaymentStatusPending,
		Amount:          parent.Amount,
		TxnRef:          "RF" + gateway.NewTxnRef(time.Now()),
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_payments_open_refund") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "refund already requested")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	return &row, true, nil
}
