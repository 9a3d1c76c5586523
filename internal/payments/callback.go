package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/KTAKhang/SEP490-Group10-sub002/internal/gateway"
	"github.com/KTAKhang/SEP490-Group10-sub002/internal/history"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/db/models"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/enums"
	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/logger"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/metrics"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox"
	"github.com/KTAKhang/SEP490-Group10-sub002/pkg/outbox/payloads"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	// OutcomeRefundQueued is a capture that landed on a cancelled attempt.
	// The money is recorded and a refund is queued against it.
	OutcomeRefundQueued = "refund_queued"

	defaultRetryWindow = 30 * time.Minute
)

// CallbackResult tells the caller where to send the shopper.
type CallbackResult struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Outcome   string    `json:"outcome"`
	Replayed  bool      `json:"replayed"`
}

type callbackParser interface {
	ParseCallback(rawQuery string) (*gateway.Callback, error)
}

// CallbackProcessorParams wires the processor.
type CallbackProcessorParams struct {
	DB          db.TxRunner
	Parser      callbackParser
	Outbox      outbox.Emitter
	Metrics     *metrics.EngineMetrics
	Logger      *logger.Logger
	RetryWindow time.Duration
}

// CallbackProcessor applies gateway results to payments and orders. Every
// check and write for one delivery runs in a single transaction, and every
// write is a compare-and-swap on the current status, so replays and races
// with the sweeper resolve to exactly one winner.
type CallbackProcessor struct {
	db          db.TxRunner
	parser      callbackParser
	outbox      outbox.Emitter
	metrics     *metrics.EngineMetrics
	logg        *logger.Logger
	retryWindow time.Duration
	now         func() time.Time
}

func NewCallbackProcessor(params CallbackProcessorParams) (*CallbackProcessor, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db required")
	}
	if params.Parser == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "callback parser required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	window := params.RetryWindow
	if window <= 0 {
		window = defaultRetryWindow
	}
	return &CallbackProcessor{
		db:          params.DB,
		parser:      params.Parser,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        logg,
		retryWindow: window,
		now:         time.Now,
	}, nil
}

// Verify checks the signature and decodes the callback without touching state.
func (p *CallbackProcessor) Verify(rawQuery string) (*gateway.Callback, error) {
	cb, err := p.parser.ParseCallback(rawQuery)
	if err != nil {
		p.metrics.Callback(callbackErrorOutcome(err))
		return nil, err
	}
	return cb, nil
}

// Process verifies and applies one raw callback query.
func (p *CallbackProcessor) Process(ctx context.Context, rawQuery string) (*CallbackResult, error) {
	cb, err := p.Verify(rawQuery)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, cb)
}

// Apply runs the state changes for an already verified callback.
func (p *CallbackProcessor) Apply(ctx context.Context, cb *gateway.Callback) (*CallbackResult, error) {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"txn_ref":        cb.TxnRef,
		"transaction_no": cb.TransactionNo,
		"response_code":  cb.ResponseCode,
	})

	var result CallbackResult
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = p.apply(ctx, tx, cb)
		return err
	})
	if err != nil {
		p.metrics.Callback(callbackErrorOutcome(err))
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "gateway callback rejected")
		return nil, err
	}

	outcome := result.Outcome
	if result.Replayed {
		outcome = "replayed"
	}
	p.metrics.Callback(outcome)
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"order_id": result.OrderID.String(),
		"outcome":  result.Outcome,
		"replayed": result.Replayed,
	}), "gateway callback processed")
	return &result, nil
}

func (p *CallbackProcessor) apply(ctx context.Context, tx *gorm.DB, cb *gateway.Callback) (CallbackResult, error) {
	var payment models.Payment
	err := tx.WithContext(ctx).
		Where("txn_ref = ? AND type = ?", cb.TxnRef, enums.PaymentTypePayment).
		Take(&payment).Error
	if err != nil {
		if db.IsNotFound(err) {
			return CallbackResult{}, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment not found")
		}
		return CallbackResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	result := CallbackResult{OrderID: payment.OrderID, PaymentID: payment.ID}

	if payment.Status == enums.PaymentStatusSuccess {
		outcome, err := p.settledOutcome(ctx, tx, payment)
		if err != nil {
			return result, err
		}
		result.Outcome = outcome
		result.Replayed = true
		return result, nil
	}

	// Only approved deliveries carry a settlement id worth binding.
	settlementID := ""
	if cb.Succeeded() {
		settlementID = cb.SettlementID()
	}
	if settlementID != "" {
		var count int64
		if err := tx.WithContext(ctx).Model(&models.Payment{}).
			Where("provider_txn_id = ? AND id <> ? AND status <> ?", settlementID, payment.ID, enums.PaymentStatusCancelled).
			Count(&count).Error; err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check provider transaction")
		}
		if count > 0 {
			return result, pkgerrors.New(pkgerrors.CodeDuplicateTransaction, "provider transaction bound to another payment")
		}
	}

	if !cb.Amount.IsZero() && !cb.Amount.Equal(payment.Amount) {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "callback amount does not match payment").
			WithDetails(map[string]any{"expected": payment.Amount.String(), "received": cb.Amount.String()})
	}

	if payment.Status == enums.PaymentStatusCancelled && cb.Succeeded() && payment.Method == enums.PaymentMethodGateway {
		return p.applyLateSettlement(ctx, tx, cb, payment, result)
	}
	if payment.Status != enums.PaymentStatusPending {
		result.Outcome = OutcomeFailed
		result.Replayed = true
		return result, nil
	}

	if cb.Succeeded() {
		return p.applySuccess(ctx, tx, cb, payment, result)
	}
	return p.applyFailure(ctx, tx, cb, payment, result)
}

func (p *CallbackProcessor) applySuccess(ctx context.Context, tx *gorm.DB, cb *gateway.Callback, payment models.Payment, result CallbackResult) (CallbackResult, error) {
	now := p.now().UTC()
	ok, err := Transition(ctx, tx, enums.PaymentTypePayment, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusSuccess, map[string]any{
		"provider_txn_id": nullable(cb.SettlementID()),
		"response_code":   cb.ResponseCode,
		"paid_at":         now,
		"failure_reason":  nil,
	})
	if err != nil {
		return result, err
	}
	if !ok {
		return p.lostRace(ctx, tx, result)
	}
	result.Outcome = OutcomeSuccess

	res := tx.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?, paid_at = ?, auto_delete = ?, retry_deadline = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, enums.OrderStatusPaid, now, false, now, payment.OrderID, enums.OrderStatusPending)
	advanced, err := db.Applied(res)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}

	var order models.Order
	if err := tx.WithContext(ctx).Where("id = ?", payment.OrderID).Take(&order).Error; err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if !advanced {
		// Money arrived for an order that left PENDING meanwhile.
		if order.Status == enums.OrderStatusCancelled {
			payment.Status = enums.PaymentStatusSuccess
			return p.queueLateRefund(ctx, tx, order, payment, result)
		}
		return result, nil
	}

	if err := history.Append(ctx, tx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, history.Gateway,
		fmt.Sprintf("gateway payment %s approved", cb.TransactionNo)); err != nil {
		return result, err
	}
	return result, p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         history.Gateway.Ref(),
		OccurredAt:    now,
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			PaymentID:     payment.ID,
			TxnRef:        payment.TxnRef,
			ProviderTxnID: cb.TransactionNo,
			Amount:        payment.Amount,
			PaidAt:        now,
		},
	})
}

func (p *CallbackProcessor) applyFailure(ctx context.Context, tx *gorm.DB, cb *gateway.Callback, payment models.Payment, result CallbackResult) (CallbackResult, error) {
	now := p.now().UTC()
	ok, err := Transition(ctx, tx, enums.PaymentTypePayment, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, map[string]any{
		"response_code":  cb.ResponseCode,
		"failure_reason": "gateway response code " + cb.ResponseCode,
	})
	if err != nil {
		return result, err
	}
	if !ok {
		return p.lostRace(ctx, tx, result)
	}
	result.Outcome = OutcomeFailed

	deadline := now.Add(p.retryWindow)
	res := tx.WithContext(ctx).Exec(`
		UPDATE orders
		SET auto_delete = ?, retry_deadline = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, true, deadline, now, payment.OrderID, enums.OrderStatusPending)
	flagged, err := db.Applied(res)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order for auto delete")
	}
	if !flagged {
		return result, nil
	}

	return result, p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   payment.OrderID,
		Actor:         history.Gateway.Ref(),
		OccurredAt:    now,
		Data: payloads.OrderPaymentFailedEvent{
			OrderID:       payment.OrderID,
			PaymentID:     payment.ID,
			ResponseCode:  cb.ResponseCode,
			RetryDeadline: deadline,
		},
	})
}

// applyLateSettlement records a capture on an attempt that was cancelled
// locally and refunds it in the same transaction. The order stays cancelled.
func (p *CallbackProcessor) applyLateSettlement(ctx context.Context, tx *gorm.DB, cb *gateway.Callback, payment models.Payment, result CallbackResult) (CallbackResult, error) {
	now := p.now().UTC()
	ok, err := Transition(ctx, tx, enums.PaymentTypePayment, payment.ID, enums.PaymentStatusCancelled, enums.PaymentStatusSuccess, map[string]any{
		"provider_txn_id": nullable(cb.SettlementID()),
		"response_code":   cb.ResponseCode,
		"paid_at":         now,
		"failure_reason":  nil,
	})
	if err != nil {
		return result, err
	}
	if !ok {
		return p.lostRace(ctx, tx, result)
	}
	payment.Status = enums.PaymentStatusSuccess
	paidAt := now
	payment.PaidAt = &paidAt

	var order models.Order
	if err := tx.WithContext(ctx).Where("id = ?", payment.OrderID).Take(&order).Error; err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return p.queueLateRefund(ctx, tx, order, payment, result)
}

func (p *CallbackProcessor) queueLateRefund(ctx context.Context, tx *gorm.DB, order models.Order, payment models.Payment, result CallbackResult) (CallbackResult, error) {
	refund, _, err := RefundCharge(ctx, tx, order, payment)
	if err != nil {
		return result, err
	}
	p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"refund_id": refund.ID.String(),
	}), "payment settled after cancellation; refund queued")
	result.Outcome = OutcomeRefundQueued
	return result, nil
}

// settledOutcome distinguishes a normal settled charge from one that is
// being refunded because its order was cancelled first.
func (p *CallbackProcessor) settledOutcome(ctx context.Context, tx *gorm.DB, payment models.Payment) (string, error) {
	var order models.Order
	if err := tx.WithContext(ctx).Select("status").Where("id = ?", payment.OrderID).Take(&order).Error; err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusCancelled {
		return OutcomeRefundQueued, nil
	}
	return OutcomeSuccess, nil
}

// lostRace reports the state left by whichever writer won.
func (p *CallbackProcessor) lostRace(ctx context.Context, tx *gorm.DB, result CallbackResult) (CallbackResult, error) {
	var current models.Payment
	if err := tx.WithContext(ctx).Select("status").Where("id = ?", result.PaymentID).Take(&current).Error; err != nil {
		if db.IsNotFound(err) {
			return result, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment removed concurrently")
		}
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	result.Replayed = true
	result.Outcome = OutcomeFailed
	if current.Status == enums.PaymentStatusSuccess {
		outcome, err := p.settledOutcome(ctx, tx, models.Payment{OrderID: result.OrderID})
		if err != nil {
			return result, err
		}
		result.Outcome = outcome
	}
	return result, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func callbackErrorOutcome(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature):
		return "invalid_signature"
	case pkgerrors.IsCode(err, pkgerrors.CodeDuplicateTransaction):
		return "duplicate"
	case pkgerrors.IsCode(err, pkgerrors.CodePaymentNotFound):
		return "not_found"
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return "invalid"
	default:
		return "error"
	}
}
