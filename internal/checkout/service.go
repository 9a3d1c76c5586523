// Package checkout turns a shopper's held cart lines into a committed order.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/cart"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/catalog"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/checkout/helpers"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/inventory"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/notifications"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/payments"
	pkgcheckout "github.com/KTAKhang/SEP490-Group10-sub002/pkg/checkout"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
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

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
}

// Input captures a checkout request. Prices are never accepted from the client.
type Input struct {
	Shopper            uuid.UUID
	SelectedProductIDs []uuid.UUID
	Receiver           helpers.Receiver
	Note               string
	PaymentMethod      enums.PaymentMethod
	ClientIP           string
}

// Result is returned once the order is committed. PaymentURL is only set for
// gateway orders, and is empty when the hosted-page URL could not be built.
type Result struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentID     uuid.UUID           `json:"payment_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentURL    string              `json:"payment_url,omitempty"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	DB       txDB
	Ledger   inventory.Ledger
	Catalog  catalog.PriceLookup
	Outbox   outbox.Emitter
	Gateway  paymentURLBuilder
	Notifier Notifier
	Logger   *logger.Logger
}

type service struct {
	db       txDB
	ledger   inventory.Ledger
	catalog  catalog.PriceLookup
	outbox   outbox.Emitter
	gateway  paymentURLBuilder
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	return newService(params)
}

func newService(params ServiceParams) (*service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	lookup := params.Catalog
	if lookup == nil {
		lookup = catalog.NewPriceLookup()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:       params.DB,
		ledger:   params.Ledger,
		catalog:  lookup,
		outbox:   params.Outbox,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Checkout converts the selected cart lines into one order. The held quantity
// is committed against on_hand, the order and its first payment are written,
// and the cart lines are removed, all in one transaction.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if input.Shopper == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.PaymentMethod == enums.PaymentMethodGateway && s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	receiver, err := helpers.ValidateReceiver(input.Receiver)
	if err != nil {
		return nil, err
	}
	selected := helpers.NormalizeSelection(input.SelectedProductIDs)
	if len(selected) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "no cart items selected")
	}
	shopper := history.Customer(input.Shopper)

	var (
		order   models.Order
		payment models.Payment
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		items, err := cart.ListSelected(ctx, tx, input.Shopper, selected)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "no cart items selected")
		}

		now := s.now().UTC()
		if err := s.consumeHolds(ctx, tx, input.Shopper, items, now); err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		snapshots, err := s.catalog.FindByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		details, total, err := helpers.BuildDetails(items, snapshots)
		if err != nil {
			return err
		}

		order = models.Order{
			UserID:          input.Shopper,
			ReceiverName:    receiver.Name,
			ReceiverPhone:   receiver.Phone,
			ReceiverAddress: receiver.Address,
			Note:            strings.TrimSpace(input.Note),
			TotalPrice:      total,
			PaymentMethod:   input.PaymentMethod,
			Status:          enums.OrderStatusPending,
			CreatedAt:       now,
			Details:         details,
		}
		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := history.Append(ctx, tx, order.ID, enums.OrderStatusPending, enums.OrderStatusPending, shopper, "order created"); err != nil {
			return err
		}

		payment = payments.NewPayment(order, gateway.NewTxnRef(now))
		payment.CreatedAt = now
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		if _, err := cart.DeleteSelected(ctx, tx, input.Shopper, ids); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         shopper.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentMethod: order.PaymentMethod,
				TotalPrice:    order.TotalPrice,
				Lines:         helpers.EventLines(details),
			},
		})
	})
	if err != nil {
		return nil, abortError(err)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"user_id":        order.UserID.String(),
		"payment_method": string(order.PaymentMethod),
		"total_price":    order.TotalPrice.String(),
	})
	s.logg.Info(logCtx, "order created")

	result := &Result{OrderID: order.ID, PaymentID: payment.ID, PaymentMethod: order.PaymentMethod}
	if order.PaymentMethod == enums.PaymentMethodGateway {
		url, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
			TxnRef:    payment.TxnRef,
			OrderID:   order.ID,
			Amount:    payment.Amount,
			ClientIP:  input.ClientIP,
			CreatedAt: payment.CreatedAt,
		})
		if err != nil {
			// the order is committed either way; the sweeper expires the
			// attempt if the shopper never reaches the gateway
			s.logg.Error(logCtx, "build payment url", err)
		} else {
			result.PaymentURL = url
		}
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, order.UserID, notifications.Message{
			Title: "Order placed",
			Body:  "We received your order.",
			Data:  map[string]any{"order_id": order.ID.String()},
		})
	}
	return result, nil
}

// consumeHolds turns each line's stock lock into a committed decrement. A
// missing, expired or short hold fails the whole checkout; nothing is
// re-reserved on the shopper's behalf.
func (s *service) consumeHolds(ctx context.Context, tx *gorm.DB, shopperID uuid.UUID, items []models.CartItem, now time.Time) error {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	var locks []models.StockLock
	if err := tx.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", shopperID, ids).
		Find(&locks).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock locks")
	}
	byProduct := make(map[uuid.UUID]models.StockLock, len(locks))
	for _, lock := range locks {
		byProduct[lock.ProductID] = lock
	}

	checks := make([]pkgcheckout.HoldCheck, 0, len(items))
	for _, item := range items {
		lock, ok := byProduct[item.ProductID]
		checks = append(checks, pkgcheckout.HoldCheck{
			ProductID: item.ProductID,
			Requested: item.Quantity,
			Held:      lock.Quantity,
			Present:   ok,
			Live:      ok && lock.ActiveAt(now),
		})
	}
	if err := pkgcheckout.ValidateHolds(checks); err != nil {
		return err
	}

	for _, item := range items {
		lock := byProduct[item.ProductID]
		res := tx.WithContext(ctx).Exec(`
			DELETE FROM stock_locks
			WHERE id = ? AND quantity = ? AND expires_at > ?
		`, lock.ID, lock.Quantity, now)
		ok, err := db.Applied(res)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume stock lock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStockRaceLost, "stock hold changed during checkout").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}

		committed, err := s.ledger.Commit(ctx, tx, item.ProductID, item.Quantity, lock.Quantity)
		if err != nil {
			return err
		}
		if !committed {
			return pkgerrors.New(pkgerrors.CodeStockRaceLost, "stock no longer covers the hold").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
	}
	return nil
}

// abortError keeps domain errors as they are and reports infrastructure
// faults as an aborted transaction.
func abortError(err error) error {
	typed := pkgerrors.As(err)
	if typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		default:
			return err
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransactionAborted, err, "checkout aborted")
}
