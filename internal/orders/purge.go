package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
)

// PurgeRule names why an unpaid order is being removed.
type PurgeRule string

const (
	// RuleAutoDelete removes orders whose failed-payment retry window closed.
	RuleAutoDelete PurgeRule = "auto_delete"
	// RuleGatewayPending removes gateway orders whose attempt was never answered.
	RuleGatewayPending PurgeRule = "gateway_pending"
)

// ErrPurgeSkipped means the order no longer matched its rule or changed
// under the purge. The caller's transaction must roll back.
var ErrPurgeSkipped = pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer eligible for purge")

// PurgeResult describes a removed order.
type PurgeResult struct {
	OrderID   uuid.UUID
	UserID    uuid.UUID
	Rule      PurgeRule
	Restocked []payloads.OrderLine
}

// Purger deletes unpaid orders and returns their stock.
type Purger struct {
	ledger inventory.Ledger
	outbox outbox.Emitter
}

func NewPurger(ledger inventory.Ledger, emitter outbox.Emitter) (*Purger, error) {
	if ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock ledger required")
	}
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox required")
	}
	return &Purger{ledger: ledger, outbox: emitter}, nil
}

// DueAutoDelete lists PENDING orders flagged for auto delete whose retry
// deadline is at or before now.
func DueAutoDelete(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := conn.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND auto_delete = ? AND retry_deadline IS NOT NULL AND retry_deadline <= ?",
			enums.OrderStatusPending, true, now.UTC()).
		Order("retry_deadline ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find auto delete orders")
	}
	return ids, nil
}

// StaleGatewayPending lists PENDING gateway orders whose newest payment is
// PENDING and was created at or before cutoff.
func StaleGatewayPending(ctx context.Context, conn *gorm.DB, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := conn.WithContext(ctx).Raw(`
		SELECT o.id
		FROM orders o
		JOIN payments p ON p.order_id = o.id AND p.type = ?
		WHERE o.status = ? AND o.payment_method = ?
		  AND p.status = ? AND p.created_at <= ?
		  AND NOT EXISTS (
			SELECT 1 FROM payments newer
			WHERE newer.order_id = o.id AND newer.type = ? AND newer.created_at > p.created_at
		  )
		ORDER BY p.created_at ASC
		LIMIT ?
	`, enums.PaymentTypePayment, enums.OrderStatusPending, enums.PaymentMethodGateway,
		enums.PaymentStatusPending, cutoff.UTC(), enums.PaymentTypePayment, limit).
		Scan(&ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale gateway orders")
	}
	return ids, nil
}

// Purge removes one order inside tx after re-checking rule against cutoff.
// For RuleAutoDelete cutoff is now; for RuleGatewayPending it is now minus the
// payment deadline. Every delete is guarded so a concurrent callback or
// cancel wins cleanly; in that case ErrPurgeSkipped is returned.
func (p *Purger) Purge(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, rule PurgeRule, cutoff time.Time) (*PurgeResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for purge")
	}

	var order models.Order
	err := tx.WithContext(ctx).Preload("Details").Where("id = ?", orderID).Take(&order).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrPurgeSkipped
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	var rows []models.Payment
	if err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payments")
	}
	if !stillEligible(order, rows, rule, cutoff) {
		return nil, ErrPurgeSkipped
	}
	for _, row := range rows {
		if row.Status == enums.PaymentStatusSuccess {
			return nil, ErrPurgeSkipped
		}
	}

	res := tx.WithContext(ctx).Exec(`DELETE FROM payments WHERE order_id = ? AND status <> ?`, orderID, enums.PaymentStatusSuccess)
	deleted, err := db.RowsAffected(res)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payments")
	}
	if deleted != int64(len(rows)) {
		return nil, ErrPurgeSkipped
	}

	res = tx.WithContext(ctx).Exec(`DELETE FROM orders WHERE id = ? AND status = ?`, orderID, enums.OrderStatusPending)
	ok, err := db.Applied(res)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
	}
	if !ok {
		return nil, ErrPurgeSkipped
	}

	result := &PurgeResult{OrderID: order.ID, UserID: order.UserID, Rule: rule}
	for _, detail := range order.Details {
		if _, err := p.ledger.Restock(ctx, tx, detail.ProductID, detail.Quantity); err != nil {
			return nil, err
		}
		result.Restocked = append(result.Restocked, payloads.OrderLine{
			ProductID: detail.ProductID,
			Quantity:  detail.Quantity,
			UnitPrice: detail.UnitPrice,
		})
	}

	if err := tx.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderDetail{}).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order details")
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderStatusHistory{}).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order history")
	}

	expiredAt := time.Now().UTC()
	if err := p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         history.System.Ref(),
		OccurredAt:    expiredAt,
		Data: payloads.OrderExpiredEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			Rule:      string(rule),
			Restocked: result.Restocked,
			ExpiredAt: expiredAt,
		},
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func stillEligible(order models.Order, rows []models.Payment, rule PurgeRule, cutoff time.Time) bool {
	if order.Status != enums.OrderStatusPending {
		return false
	}
	switch rule {
	case RuleAutoDelete:
		return order.AutoDelete && order.RetryDeadline != nil && !order.RetryDeadline.After(cutoff)
	case RuleGatewayPending:
		if order.PaymentMethod != enums.PaymentMethodGateway {
			return false
		}
		latest := latestCharge(rows)
		return latest != nil && latest.Status == enums.PaymentStatusPending && !latest.CreatedAt.After(cutoff)
	}
	return false
}

// latestCharge expects rows newest first.
func latestCharge(rows []models.Payment) *models.Payment {
	for i := range rows {
		if rows[i].Type == enums.PaymentTypePayment {
			return &rows[i]
		}
	}
	return nil
}
