// Package orders owns the order lifecycle after checkout: reads, customer and
// admin status changes, payment retries and the sweeper's purge.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/pagination"
)

type txDB interface {
	db.TxRunner
	DB() *gorm.DB
}

type paymentURLBuilder interface {
	BuildPaymentURL(req gateway.PaymentRequest) (string, error)
}

// Notifier delivers shopper messages after commit.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, msg notifications.Message)
}

// Service defines order operations exposed to controllers.
type Service interface {
	Get(ctx context.Context, viewer history.Actor, orderID uuid.UUID) (*OrderView, error)
	List(ctx context.Context, viewer history.Actor, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error)
	Cancel(ctx context.Context, actor history.Actor, orderID uuid.UUID, reason string) (*OrderView, error)
	UpdateStatus(ctx context.Context, admin history.Actor, orderID uuid.UUID, to enums.OrderStatus, note string) (*OrderView, error)
	RetryPayment(ctx context.Context, shopperID, orderID uuid.UUID, clientIP string) (*RetryResult, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	DB       txDB
	Repo     Repository
	Ledger   inventory.Ledger
	Outbox   outbox.Emitter
	Gateway  paymentURLBuilder
	Notifier Notifier
	Logger   *logger.Logger
}

type service struct {
	db       txDB
	repo     Repository
	ledger   inventory.Ledger
	outbox   outbox.Emitter
	gateway  paymentURLBuilder
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	return newService(params)
}

func newService(params ServiceParams) (*service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	repo := params.Repo
	if repo == nil {
		repo = NewRepository(params.DB.DB())
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:       params.DB,
		repo:     repo,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, viewer history.Actor, orderID uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindOrderWithDetails(ctx, orderID)
	if err != nil {
		return nil, lookupError(err)
	}
	if !visibleTo(viewer, order) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	conn := s.db.DB()
	rows, err := payments.ForOrder(ctx, conn, orderID)
	if err != nil {
		return nil, err
	}
	trail, err := history.List(ctx, conn, orderID)
	if err != nil {
		return nil, err
	}
	return buildView(*order, rows, trail), nil
}

func (s *service) List(ctx context.Context, viewer history.Actor, params pagination.Params, filters ListFilters) (*pagination.Page[OrderSummary], error) {
	if viewer.Role != enums.RoleAdmin {
		if viewer.ID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper required")
		}
		filters.UserID = viewer.ID
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListOrders(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	summaries := make([]OrderSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, summarize(row))
	}
	page := pagination.Trim(summaries, params.Limit, func(o OrderSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

// Cancel moves the order to CANCELLED, returning stock and settling its
// payments. Cancelling an already cancelled order returns it unchanged.
func (s *service) Cancel(ctx context.Context, actor history.Actor, orderID uuid.UUID, reason string) (*OrderView, error) {
	reason = strings.TrimSpace(reason)
	var (
		order           models.Order
		changed         bool
		refundRequested bool
	)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).FindOrderWithDetails(ctx, orderID)
		if err != nil {
			return lookupError(err)
		}
		if !visibleTo(actor, found) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order = *found
		if order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if !cancellableFrom(actor.Role, order.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot be cancelled from %s", order.Status)).
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}

		now := s.now().UTC()
		from := order.Status
		res := tx.WithContext(ctx).Exec(`
			UPDATE orders
			SET status = ?, cancelled_at = ?, cancel_reason = ?, auto_delete = ?, retry_deadline = NULL, updated_at = ?
			WHERE id = ? AND status = ?
		`, enums.OrderStatusCancelled, now, nullableReason(reason), false, now, order.ID, from)
		ok, err := db.Applied(res)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !ok {
			current, err := s.repo.WithTx(tx).FindOrder(ctx, order.ID)
			if err != nil {
				return lookupError(err)
			}
			if current.Status == enums.OrderStatusCancelled {
				order = *current
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		changed = true

		note := "order cancelled"
		if reason != "" {
			note = "order cancelled: " + reason
		}
		if err := history.Append(ctx, tx, order.ID, from, enums.OrderStatusCancelled, actor, note); err != nil {
			return err
		}

		for _, detail := range order.Details {
			restocked, err := s.ledger.Restock(ctx, tx, detail.ProductID, detail.Quantity)
			if err != nil {
				return err
			}
			if !restocked {
				s.logg.Warn(s.logg.WithField(ctx, "product_id", detail.ProductID.String()), "restock skipped; product missing")
			}
		}

		refundRequested, err = s.settlePaymentsOnCancel(ctx, tx, order)
		if err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderCancelledEvent{
				OrderID:         order.ID,
				UserID:          order.UserID,
				FromStatus:      from,
				Reason:          reason,
				RefundRequested: refundRequested,
				CancelledAt:     now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":         order.ID.String(),
			"refund_requested": refundRequested,
		}), "order cancelled")
		body := "Your order has been cancelled."
		if refundRequested {
			body = "Your order has been cancelled. A refund is on its way."
		}
		s.notify(ctx, order.UserID, notifications.Message{
			Title: "Order cancelled",
			Body:  body,
			Data:  map[string]any{"order_id": order.ID.String()},
		})
	}
	return s.Get(ctx, actor, orderID)
}

// settlePaymentsOnCancel cancels open charges and queues a refund for a
// settled gateway charge.
func (s *service) settlePaymentsOnCancel(ctx context.Context, tx *gorm.DB, order models.Order) (bool, error) {
	rows, err := payments.ForOrder(ctx, tx, order.ID)
	if err != nil {
		return false, err
	}
	settled := false
	for _, row := range rows {
		if row.Type != enums.PaymentTypePayment {
			continue
		}
		switch row.Status {
		case enums.PaymentStatusUnpaid, enums.PaymentStatusPending, enums.PaymentStatusFailed:
			ok, err := payments.Transition(ctx, tx, enums.PaymentTypePayment, row.ID, row.Status, enums.PaymentStatusCancelled, nil)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, pkgerrors.New(pkgerrors.CodeStateConflict, "payment changed concurrently")
			}
		case enums.PaymentStatusSuccess:
			if row.Method == enums.PaymentMethodGateway {
				settled = true
			}
		}
	}
	if !settled {
		return false, nil
	}
	if _, _, err := payments.RequestRefund(ctx, tx, order); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus is the admin status path. CANCELLED delegates to Cancel.
func (s *service) UpdateStatus(ctx context.Context, admin history.Actor, orderID uuid.UUID, to enums.OrderStatus, note string) (*OrderView, error) {
	if admin.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if to == enums.OrderStatusCancelled {
		return s.Cancel(ctx, admin, orderID, note)
	}

	var (
		order models.Order
		from  enums.OrderStatus
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return lookupError(err)
		}
		order = *found
		from = order.Status
		if !adminMayMove(from, to, order.PaymentMethod) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to)).
				WithDetails(map[string]any{"order_id": order.ID, "from": from, "to": to})
		}

		now := s.now().UTC()
		codCompletion := to == enums.OrderStatusCompleted && order.PaymentMethod == enums.PaymentMethodCOD
		var res *gorm.DB
		if codCompletion {
			res = tx.WithContext(ctx).Exec(`
				UPDATE orders SET status = ?, paid_at = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`, to, now, now, order.ID, from)
		} else {
			res = tx.WithContext(ctx).Exec(`
				UPDATE orders SET status = ?, updated_at = ?
				WHERE id = ? AND status = ?
			`, to, now, order.ID, from)
		}
		ok, err := db.Applied(res)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		if err := history.Append(ctx, tx, order.ID, from, to, admin, note); err != nil {
			return err
		}

		if codCompletion {
			payment, err := payments.LatestPayment(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if payment.Status == enums.PaymentStatusUnpaid {
				ok, err := payments.Transition(ctx, tx, enums.PaymentTypePayment, payment.ID,
					enums.PaymentStatusUnpaid, enums.PaymentStatusSuccess, map[string]any{"paid_at": now})
				if err != nil {
					return err
				}
				if !ok {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "payment changed concurrently")
				}
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         admin.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				FromStatus: from,
				ToStatus:   to,
				Note:       note,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, order.UserID, notifications.Message{
		Title: "Order update",
		Body:  fmt.Sprintf("Your order is now %s.", strings.ToLower(string(to))),
		Data:  map[string]any{"order_id": order.ID.String(), "status": string(to)},
	})
	return s.Get(ctx, admin, orderID)
}

// RetryPayment opens a new gateway attempt for a PENDING order whose last
// attempt failed and returns the redirect for it.
func (s *service) RetryPayment(ctx context.Context, shopperID, orderID uuid.UUID, clientIP string) (*RetryResult, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	shopper := history.Customer(shopperID)

	var (
		order   models.Order
		payment models.Payment
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return lookupError(err)
		}
		if !visibleTo(shopper, found) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order = *found
		if order.PaymentMethod != enums.PaymentMethodGateway {
			return pkgerrors.New(pkgerrors.CodeValidation, "only gateway orders can retry payment")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s", order.Status))
		}
		now := s.now().UTC()
		if order.RetryDeadline != nil && now.After(*order.RetryDeadline) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "retry window elapsed")
		}

		latest, err := payments.LatestPayment(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if latest.Status != enums.PaymentStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("latest payment is %s", latest.Status))
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE orders SET auto_delete = ?, retry_deadline = NULL, updated_at = ?
			WHERE id = ? AND status = ? AND auto_delete = ?
		`, false, now, order.ID, enums.OrderStatusPending, true)
		ok, err := db.Applied(res)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear auto delete")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment retry already started")
		}

		payment = payments.NewPayment(order, gateway.NewTxnRef(now))
		payment.CreatedAt = now
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentRetry,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         shopper.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderPaymentRetriedEvent{
				OrderID:   order.ID,
				PaymentID: payment.ID,
				TxnRef:    payment.TxnRef,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	url, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		TxnRef:    payment.TxnRef,
		OrderID:   order.ID,
		Amount:    payment.Amount,
		ClientIP:  clientIP,
		CreatedAt: payment.CreatedAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment url")
	}
	return &RetryResult{OrderID: order.ID, PaymentID: payment.ID, PaymentURL: url}, nil
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, msg notifications.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, userID, msg)
}

func visibleTo(viewer history.Actor, order *models.Order) bool {
	if viewer.Role == enums.RoleAdmin {
		return true
	}
	return viewer.ID != nil && *viewer.ID == order.UserID
}

func lookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func nullableReason(reason string) any {
	if reason == "" {
		return nil
	}
	return reason
}
