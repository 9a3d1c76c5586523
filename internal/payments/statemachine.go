// Package payments owns the payment and refund row lifecycle: the transition
// table, refund requests and gateway callback processing.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

var transitions = map[enums.PaymentType]map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentTypePayment: {
		enums.PaymentStatusPending: {enums.PaymentStatusSuccess, enums.PaymentStatusFailed, enums.PaymentStatusCancelled},
		enums.PaymentStatusUnpaid:  {enums.PaymentStatusSuccess, enums.PaymentStatusCancelled},
		enums.PaymentStatusFailed:  {enums.PaymentStatusCancelled},
		// a gateway capture can land after the attempt was cancelled locally
		enums.PaymentStatusCancelled: {enums.PaymentStatusSuccess},
	},
	enums.PaymentTypeRefund: {
		enums.PaymentStatusPending:       {enums.PaymentStatusProcessing},
		enums.PaymentStatusProcessing:    {enums.PaymentStatusRefunded, enums.PaymentStatusRefundFailed, enums.PaymentStatusRefundPending},
		enums.PaymentStatusRefundPending: {enums.PaymentStatusRefunded, enums.PaymentStatusRefundFailed},
		enums.PaymentStatusRefundFailed:  {enums.PaymentStatusPending},
	},
}

// CanTransition reports whether from→to is allowed for rows of kind.
func CanTransition(kind enums.PaymentType, from, to enums.PaymentStatus) bool {
	for _, candidate := range transitions[kind][from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition moves one row from → to if it is still in from. fields are
// written in the same statement. A false result means another writer got
// there first and nothing changed.
func Transition(ctx context.Context, tx *gorm.DB, kind enums.PaymentType, paymentID uuid.UUID, from, to enums.PaymentStatus, fields map[string]any) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for payment transition")
	}
	if !CanTransition(kind, from, to) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s transition %s -> %s not allowed", kind, from, to)).
			WithDetails(map[string]any{"payment_id": paymentID, "from": from, "to": to})
	}
	updates := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND type = ? AND status = ?", paymentID, kind, from).
		Updates(updates)
	ok, err := db.Applied(res)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_payments_provider_txn_id") {
			return false, pkgerrors.Wrap(pkgerrors.CodeDuplicateTransaction, err, "provider transaction already recorded")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	return ok, nil
}

// LatestPayment returns the newest PAYMENT row of an order.
func LatestPayment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := tx.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, enums.PaymentTypePayment).
		Order("created_at DESC").
		Take(&payment).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

// ForOrder lists every payment and refund row of an order, oldest first.
func ForOrder(ctx context.Context, conn *gorm.DB, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	if err := conn.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

// NewPayment builds the initial PAYMENT row for an order.
func NewPayment(order models.Order, txnRef string) models.Payment {
	status := enums.PaymentStatusPending
	if order.PaymentMethod == enums.PaymentMethodCOD {
		status = enums.PaymentStatusUnpaid
	}
	return models.Payment{
		OrderID: order.ID,
		UserID:  order.UserID,
		Type:    enums.PaymentTypePayment,
		Method:  order.PaymentMethod,
		Status:  status,
		Amount:  order.TotalPrice,
		TxnRef:  txnRef,
	}
}
